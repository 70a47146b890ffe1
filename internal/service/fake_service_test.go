// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
)

// journal records the order in which services are touched
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type named struct {
	name string
}

func (n *named) Name() string { return n.name }

// resource is initialized and shut down but never runs, like a counter
type resource struct {
	named
	log         *journal
	initErr     error
	shutdownErr error
}

func newResource(name string, log *journal) *resource {
	return &resource{named: named{name: name}, log: log}
}

func (r *resource) Init() error {
	r.log.add("init:" + r.name)
	return r.initErr
}

func (r *resource) Shutdown() error {
	r.log.add("shutdown:" + r.name)
	return r.shutdownErr
}

// worker runs until its context is done or runFn returns
type worker struct {
	named
	log   *journal
	runFn func(ctx context.Context) error
}

func newWorker(name string, log *journal, runFn func(ctx context.Context) error) *worker {
	return &worker{named: named{name: name}, log: log, runFn: runFn}
}

func (w *worker) Run(ctx context.Context) error {
	w.log.add("run:" + w.name)
	if w.runFn != nil {
		return w.runFn(ctx)
	}
	<-ctx.Done()
	return nil
}

func (w *worker) Shutdown() error {
	w.log.add("shutdown:" + w.name)
	return nil
}
