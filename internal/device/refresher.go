// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

type refreshable interface {
	refreshAll() error
}

// refresher observes every counter periodically so that no counter can wrap
// more than once between two observations, even if nobody queries it
type refresher struct {
	ctx      context.Context
	target   refreshable
	interval time.Duration
	clock    clock.WithTicker
	logger   *slog.Logger

	done chan struct{}
}

func newRefresher(ctx context.Context, target refreshable, interval time.Duration,
	clk clock.WithTicker, logger *slog.Logger,
) *refresher {
	return &refresher{
		ctx:      ctx,
		target:   target,
		interval: interval,
		clock:    clk,
		logger:   logger.With("component", "refresher"),
		done:     make(chan struct{}),
	}
}

// run blocks until ctx is cancelled; done is closed on return
func (rf *refresher) run() {
	defer close(rf.done)

	ticker := rf.clock.NewTicker(rf.interval)
	defer ticker.Stop()

	rf.logger.Debug("Refresher started", "interval", rf.interval)
	for {
		select {
		case <-rf.ctx.Done():
			rf.logger.Debug("Refresher stopped")
			return

		case <-ticker.C():
			if err := rf.target.refreshAll(); err != nil {
				rf.logger.Error("Failed to refresh energy counters", "error", err)
			}
		}
	}
}
