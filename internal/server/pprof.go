// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/http/pprof"

	"github.com/sustainable-computing-io/raplmeter/internal/service"
)

// profiler mounts the runtime profiling endpoints when debug.pprof is enabled
type profiler struct {
	api APIService
}

var _ service.Initializer = (*profiler)(nil)

func NewPprof(api APIService) *profiler {
	return &profiler{api: api}
}

func (p *profiler) Name() string {
	return "pprof"
}

func (p *profiler) Init() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return p.api.Register("/debug/pprof/", "pprof", "Profiling data", mux)
}
