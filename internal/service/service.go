// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package service drives the lifecycle of the process components: every
// Initializer is initialized in order, every Runner then runs until the first
// one returns, and Shutdowners are released last, newest first.
package service

import (
	"context"
	"log/slog"
)

// Service is implemented by every component managed by the process
type Service interface {
	Name() string
}

// Initializer is a Service that must be initialized before anything runs
type Initializer interface {
	Service
	Init() error
}

// Runner is a Service that works in the background until its context is done
type Runner interface {
	Service
	// Run is expected to block and be thread safe
	Run(ctx context.Context) error
}

// Shutdowner is a Service holding resources that must be released on exit
type Shutdowner interface {
	Service
	Shutdown() error
}

// Names returns the name of each service, in order
func Names[S Service](services []S) []string {
	names := make([]string, len(services))
	for i, s := range services {
		names[i] = s.Name()
	}
	return names
}

// shutdown releases s if it is a Shutdowner and reports whether it failed
func shutdown(logger *slog.Logger, s Service) error {
	srv, ok := s.(Shutdowner)
	if !ok {
		return nil
	}
	if err := srv.Shutdown(); err != nil {
		logger.Error("Failed to shutdown service", "service", s.Name(), "error", err)
		return err
	}
	logger.Debug("Service shut down", "service", s.Name())
	return nil
}

func shutdownReverse(logger *slog.Logger, services []Service) {
	for i := len(services) - 1; i >= 0; i-- {
		_ = shutdown(logger, services[i])
	}
}
