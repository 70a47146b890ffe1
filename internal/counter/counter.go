// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sustainable-computing-io/raplmeter/internal/device"
)

// JoulesCounter reports the energy consumed by the machine since the last
// reset. Implementations are safe for concurrent use once Init succeeds.
type JoulesCounter interface {
	Name() string

	// Init prepares the counter and takes the initial baseline; an error
	// means the counter cannot be used on this machine
	Init() error

	// Joules returns the energy consumed since Init or the last Reset
	Joules() (device.Joules, error)

	// Reset takes the current reading as the new baseline
	Reset() error
}

var _ JoulesCounter = (*device.RAPLCounter)(nil)

// ErrNoCounter is returned by Select when none of the candidates can be used
var ErrNoCounter = errors.New("no energy counter available")

type Opts struct {
	logger  *slog.Logger
	timeout time.Duration
}

// DefaultOpts returns the options used when none are given
func DefaultOpts() Opts {
	return Opts{
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger of the counter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithTimeout bounds every request made to a remote source
func WithTimeout(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.timeout = d
	}
}

// Select initializes the candidates in order and returns the first one
// that could be initialized
func Select(logger *slog.Logger, candidates ...JoulesCounter) (JoulesCounter, error) {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if err := c.Init(); err != nil {
			logger.Warn("Energy counter unavailable, trying next", "counter", c.Name(), "error", err)
			continue
		}
		logger.Info("Using energy counter", "counter", c.Name())
		return c, nil
	}
	return nil, ErrNoCounter
}
