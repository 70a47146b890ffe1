// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sustainable-computing-io/raplmeter/internal/device"
)

// SumReader reads a cumulative energy sensor, in joules, exposed by an
// external sampling daemon
type SumReader interface {
	// Exists reports whether the daemon exposes the sensor
	Exists(ctx context.Context) (bool, error)

	// ReadSum returns the sum of the sensor since the daemon started
	ReadSum(ctx context.Context) (float64, error)
}

// Sampler is a JoulesCounter backed by an external sampling daemon
type Sampler struct {
	reader  SumReader
	timeout time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	initialized bool
	baseline    float64
}

var _ JoulesCounter = (*Sampler)(nil)

func NewSampler(reader SumReader, applyOpts ...OptionFn) *Sampler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &Sampler{
		reader:  reader,
		timeout: opts.timeout,
		logger:  opts.logger.With("service", "sampler"),
	}
}

func (s *Sampler) Name() string {
	return "sampler"
}

func (s *Sampler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return fmt.Errorf("sampler already initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ok, err := s.reader.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach sampling daemon: %w", err)
	}
	if !ok {
		return fmt.Errorf("energy sensor not exposed by sampling daemon")
	}

	sum, err := s.reader.ReadSum(ctx)
	if err != nil {
		return fmt.Errorf("failed to read energy sensor: %w", err)
	}
	s.baseline = sum
	s.initialized = true
	s.logger.Debug("Sampler initialized", "baseline", sum)
	return nil
}

func (s *Sampler) Joules() (device.Joules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return 0, device.ErrNotInitialized
	}
	sum, err := s.readSum()
	if err != nil {
		return 0, err
	}
	return device.Joules(sum - s.baseline), nil
}

func (s *Sampler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return device.ErrNotInitialized
	}
	sum, err := s.readSum()
	if err != nil {
		return err
	}
	s.baseline = sum
	return nil
}

func (s *Sampler) readSum() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	sum, err := s.reader.ReadSum(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read energy sensor: %w", err)
	}
	return sum, nil
}
