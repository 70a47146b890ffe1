// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/raplmeter/internal/device"
)

// JoulesSource is a whole machine energy counter
type JoulesSource interface {
	Name() string
	Joules() (device.Joules, error)
}

// JoulesCollector exposes the energy of the whole machine as reported by
// the selected energy counter
type JoulesCollector struct {
	source JoulesSource
	logger *slog.Logger
	mutex  sync.Mutex
	desc   *prom.Desc
}

func NewJoulesCollector(source JoulesSource, logger *slog.Logger) *JoulesCollector {
	return &JoulesCollector{
		source: source,
		logger: logger.With("collector", "joules"),
		desc: prom.NewDesc(
			prom.BuildFQName(raplmeterNS, "node", "joules_total"),
			"Energy consumption of the machine in joules since the counter was reset",
			nil, prom.Labels{"source": source.Name()}),
	}
}

func (c *JoulesCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.desc
}

func (c *JoulesCollector) Collect(ch chan<- prom.Metric) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	j, err := c.source.Joules()
	if err != nil {
		c.logger.Error("Failed to read energy", "source", c.source.Name(), "error", err)
		return
	}
	ch <- prom.MustNewConstMetric(c.desc, prom.CounterValue, float64(j))
}
