// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"

	"github.com/oklog/run"
)

// Run runs every Runner in its own goroutine and returns when the first of
// them returns; the others are then cancelled and shut down.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var (
		g       run.Group
		runners []Runner
	)
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			continue
		}
		runners = append(runners, runner)

		g.Add(
			func() error {
				logger.Info("Running service", "service", s.Name())
				return runner.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("Service terminated", "service", s.Name(), "reason", err)
				}

				_ = shutdown(logger, s)
			},
		)
	}

	logger.Info("Running all services", "services", Names(runners))
	return g.Run()
}

// Shutdown releases, in reverse order, the services that hold resources but
// do not run in the background. Runners are shut down by Run.
func Shutdown(logger *slog.Logger, services []Service) {
	if logger == nil {
		logger = slog.Default()
	}

	passive := make([]Service, 0, len(services))
	for _, s := range services {
		if _, ok := s.(Runner); ok {
			continue
		}
		passive = append(passive, s)
	}
	shutdownReverse(logger, passive)
}
