// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/raplmeter/internal/device"
)

// DomainEnergyReader is the subset of device.RAPLCounter used by EnergyCollector
type DomainEnergyReader interface {
	CPUIDs() []int
	DomainJoules(cpuID int, d device.Domain) (device.Joules, error)
	HasCores() bool
	HasGraphic() bool
	HasDRAM() bool
	WrapInterval() time.Duration
	RefreshInterval() time.Duration
}

var _ DomainEnergyReader = (*device.RAPLCounter)(nil)

// EnergyCollector exposes the per CPU and per domain RAPL energy
type EnergyCollector struct {
	reader DomainEnergyReader
	logger *slog.Logger

	// serializes scrapes so that each one observes the counters in order
	mutex sync.Mutex

	joulesDesc  *prom.Desc
	wrapDesc    *prom.Desc
	refreshDesc *prom.Desc
}

func NewEnergyCollector(reader DomainEnergyReader, logger *slog.Logger) *EnergyCollector {
	return &EnergyCollector{
		reader: reader,
		logger: logger.With("collector", "energy"),

		joulesDesc: prom.NewDesc(
			prom.BuildFQName(raplmeterNS, "cpu", "joules_total"),
			"Energy consumption of a CPU package RAPL domain in joules since the counter was reset",
			[]string{"cpu", "domain"}, nil),
		wrapDesc: prom.NewDesc(
			prom.BuildFQName(raplmeterNS, "rapl", "wrap_interval_seconds"),
			"Shortest time in which a RAPL energy counter can wrap around",
			nil, nil),
		refreshDesc: prom.NewDesc(
			prom.BuildFQName(raplmeterNS, "rapl", "refresh_interval_seconds"),
			"Period at which every RAPL energy counter is observed",
			nil, nil),
	}
}

func (c *EnergyCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.joulesDesc
	ch <- c.wrapDesc
	ch <- c.refreshDesc
}

// domains returns the domains readable on this machine
func (c *EnergyCollector) domains() []device.Domain {
	domains := []device.Domain{device.DomainPackage}
	if c.reader.HasCores() {
		domains = append(domains, device.DomainCores)
	}
	if c.reader.HasGraphic() {
		domains = append(domains, device.DomainGraphic)
	}
	if c.reader.HasDRAM() {
		domains = append(domains, device.DomainDRAM)
	}
	return domains
}

func (c *EnergyCollector) Collect(ch chan<- prom.Metric) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ch <- prom.MustNewConstMetric(c.wrapDesc, prom.GaugeValue, c.reader.WrapInterval().Seconds())
	ch <- prom.MustNewConstMetric(c.refreshDesc, prom.GaugeValue, c.reader.RefreshInterval().Seconds())

	domains := c.domains()
	for _, id := range c.reader.CPUIDs() {
		cpu := strconv.Itoa(id)
		for _, d := range domains {
			j, err := c.reader.DomainJoules(id, d)
			if err != nil {
				c.logger.Error("Failed to read energy", "cpu", id, "domain", d, "error", err)
				continue
			}
			ch <- prom.MustNewConstMetric(c.joulesDesc, prom.CounterValue, float64(j), cpu, d.String())
		}
	}
}
