// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sustainable-computing-io/raplmeter/internal/device"
	"github.com/sustainable-computing-io/raplmeter/internal/service"
)

// JoulesReader is the part of the selected counter the probe relies on
type JoulesReader interface {
	Name() string
	Joules() (device.Joules, error)
}

type probe struct {
	api     APIService
	counter JoulesReader
	logger  *slog.Logger
}

var _ service.Initializer = (*probe)(nil)

// NewProbe creates a service exposing liveness and readiness endpoints. The
// process is ready while the counter can be read.
func NewProbe(api APIService, counter JoulesReader, logger *slog.Logger) *probe {
	return &probe{
		api:     api,
		counter: counter,
		logger:  logger.With("service", "probe"),
	}
}

func (p *probe) Name() string {
	return "probe"
}

func (p *probe) Init() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/probe/readyz", p.readyz)
	mux.HandleFunc("/probe/livez", p.livez)
	return p.api.Register("/probe/", "probe", "Health check endpoints", mux)
}

func (p *probe) readyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := p.counter.Joules(); err != nil {
		p.logger.Warn("Readiness check failed", "counter", p.counter.Name(), "error", err)
		respond(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not ready",
			"counter": p.counter.Name(),
			"reason":  err.Error(),
		})
		return
	}

	respond(w, http.StatusOK, map[string]string{"status": "ok", "counter": p.counter.Name()})
}

// livez only proves the server answers
func (p *probe) livez(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "alive"})
}

func respond(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
