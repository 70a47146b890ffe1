// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

type RAPLOpts struct {
	logger          *slog.Logger
	clock           clock.WithTicker
	refreshInterval time.Duration
	refresher       bool
}

// DefaultRAPLOpts returns the options used when none are given
func DefaultRAPLOpts() RAPLOpts {
	return RAPLOpts{
		logger:          slog.Default(),
		clock:           clock.RealClock{},
		refreshInterval: 0, // half of the wrap interval
		refresher:       true,
	}
}

// RAPLOptionFn is a function sets one more more options in RAPLOpts struct
type RAPLOptionFn func(*RAPLOpts)

// WithRAPLLogger sets the logger for the RAPLCounter
func WithRAPLLogger(logger *slog.Logger) RAPLOptionFn {
	return func(o *RAPLOpts) {
		o.logger = logger
	}
}

// WithRAPLClock sets the clock driving the background refresher
func WithRAPLClock(c clock.WithTicker) RAPLOptionFn {
	return func(o *RAPLOpts) {
		o.clock = c
	}
}

// WithRefreshInterval overrides the refresher period. Intervals longer than
// half of the wrap interval are clamped.
func WithRefreshInterval(d time.Duration) RAPLOptionFn {
	return func(o *RAPLOpts) {
		o.refreshInterval = d
	}
}

// WithoutRefresher disables the background refresher
func WithoutRefresher() RAPLOptionFn {
	return func(o *RAPLOpts) {
		o.refresher = false
	}
}
