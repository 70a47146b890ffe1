// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sustainable-computing-io/raplmeter/internal/device"
)

// WattHourMeter is a power meter device reporting a cumulative reading in
// watt-hours
type WattHourMeter interface {
	Open() error
	WattHours() (float64, error)
	Close() error
}

// SmartGauge is a JoulesCounter backed by a smart power meter
type SmartGauge struct {
	meter  WattHourMeter
	logger *slog.Logger

	mu       sync.Mutex
	open     bool
	baseline device.Joules
}

var _ JoulesCounter = (*SmartGauge)(nil)

func NewSmartGauge(meter WattHourMeter, applyOpts ...OptionFn) *SmartGauge {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &SmartGauge{
		meter:  meter,
		logger: opts.logger.With("service", "smart-gauge"),
	}
}

func (g *SmartGauge) Name() string {
	return "smart-gauge"
}

func (g *SmartGauge) Init() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return fmt.Errorf("smart gauge already initialized")
	}
	if err := g.meter.Open(); err != nil {
		return fmt.Errorf("failed to open power meter: %w", err)
	}

	abs, err := g.absolute()
	if err != nil {
		if cerr := g.meter.Close(); cerr != nil {
			g.logger.Warn("Failed to close power meter", "error", cerr)
		}
		return err
	}
	g.open = true
	g.baseline = abs
	g.logger.Debug("Smart gauge initialized", "baseline", abs)
	return nil
}

func (g *SmartGauge) Joules() (device.Joules, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return 0, device.ErrNotInitialized
	}
	abs, err := g.absolute()
	if err != nil {
		return 0, err
	}
	return abs - g.baseline, nil
}

func (g *SmartGauge) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return device.ErrNotInitialized
	}
	abs, err := g.absolute()
	if err != nil {
		return err
	}
	g.baseline = abs
	return nil
}

// Shutdown implements service.Shutdowner
func (g *SmartGauge) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return nil
	}
	g.open = false
	return g.meter.Close()
}

func (g *SmartGauge) absolute() (device.Joules, error) {
	wh, err := g.meter.WattHours()
	if err != nil {
		return 0, fmt.Errorf("failed to read power meter: %w", err)
	}
	return device.JoulesFromWattHours(wh), nil
}
