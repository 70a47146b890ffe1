// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"strconv"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/raplmeter/internal/topology"
)

// cpuInfoCollector exposes the CPU packages the energy counters belong to
type cpuInfoCollector struct {
	sync.Mutex

	topo   topology.Provider
	logger *slog.Logger
	desc   *prom.Desc
}

// NewCPUInfoCollector creates a collector for the packages enumerated by topo
func NewCPUInfoCollector(topo topology.Provider, logger *slog.Logger) *cpuInfoCollector {
	return &cpuInfoCollector{
		topo:   topo,
		logger: logger.With("collector", "cpu_info"),
		desc: prom.NewDesc(
			prom.BuildFQName(raplmeterNS, "node", "cpu_info"),
			"CPU package information",
			[]string{"cpu", "core", "vendor_id", "family"},
			nil,
		),
	}
}

func (c *cpuInfoCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.desc
}

func (c *cpuInfoCollector) Collect(ch chan<- prom.Metric) {
	c.Lock()
	defer c.Unlock()

	cpus, err := c.topo.CPUs()
	if err != nil {
		c.logger.Error("Failed to enumerate cpus", "error", err)
		return
	}
	for _, cpu := range cpus {
		ch <- prom.MustNewConstMetric(
			c.desc,
			prom.GaugeValue,
			1,
			strconv.Itoa(cpu.ID),
			strconv.Itoa(cpu.Core),
			cpu.VendorID,
			cpu.Family,
		)
	}
}
