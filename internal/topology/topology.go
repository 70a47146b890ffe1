// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// CPU is a physical CPU package as seen by the energy counters.
type CPU struct {
	// ID is the physical package id; ids need not be contiguous
	ID int
	// Core is the logical processor used to access the package MSRs
	Core int

	VendorID string
	Family   string
}

func (c CPU) String() string {
	return fmt.Sprintf("cpu%d(core=%d, vendor=%s, family=%s)", c.ID, c.Core, c.VendorID, c.Family)
}

// Provider enumerates the CPUs of the machine
type Provider interface {
	CPUs() ([]CPU, error)
}

// cpuInfoReader is implemented by procfs.FS; abstracted to allow mocking
type cpuInfoReader interface {
	CPUInfo() ([]procfs.CPUInfo, error)
}

type procfsProvider struct {
	fs cpuInfoReader
}

var _ Provider = (*procfsProvider)(nil)

// NewProcFSProvider returns a Provider that reads <procPath>/cpuinfo
func NewProcFSProvider(procPath string) (*procfsProvider, error) {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create procfs: %w", err)
	}
	return &procfsProvider{fs: fs}, nil
}

// CPUs groups the logical processors of cpuinfo by physical package id
func (p *procfsProvider) CPUs() ([]CPU, error) {
	infos, err := p.fs.CPUInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to read cpuinfo: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no processors found in cpuinfo")
	}

	procs := make([]processor, 0, len(infos))
	for _, info := range infos {
		procs = append(procs, processor{
			index:      int(info.Processor),
			physicalID: info.PhysicalID,
			vendorID:   info.VendorID,
			family:     info.CPUFamily,
		})
	}
	return groupPackages(procs)
}

// processor is one logical processor as listed by cpuinfo
type processor struct {
	index      int
	physicalID string
	vendorID   string
	family     string
}

// groupPackages returns one CPU per physical package, sorted by id. The
// lowest numbered logical processor of a package is its representative core.
func groupPackages(procs []processor) ([]CPU, error) {
	packages := map[int]CPU{}
	for _, p := range procs {
		id := 0
		if pid := strings.TrimSpace(p.physicalID); pid != "" {
			var err error
			id, err = strconv.Atoi(pid)
			if err != nil {
				return nil, fmt.Errorf("invalid physical id %q for processor %d: %w", pid, p.index, err)
			}
		}

		if existing, ok := packages[id]; ok && existing.Core <= p.index {
			continue
		}
		packages[id] = CPU{
			ID:       id,
			Core:     p.index,
			VendorID: strings.TrimSpace(p.vendorID),
			Family:   strings.TrimSpace(p.family),
		}
	}
	return sortedCPUs(packages), nil
}

func sortedCPUs(m map[int]CPU) []CPU {
	cpus := make([]CPU, 0, len(m))
	for _, c := range m {
		cpus = append(cpus, c)
	}
	sort.Slice(cpus, func(i, j int) bool {
		return cpus[i].ID < cpus[j].ID
	})
	return cpus
}

// Static is a Provider over a fixed list of CPUs
type Static []CPU

func (s Static) CPUs() ([]CPU, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("no cpus configured")
	}
	cpus := make([]CPU, len(s))
	copy(cpus, s)
	return cpus, nil
}

// FirstOf returns a Provider asking each provider in turn until one of them
// enumerates the CPUs
func FirstOf(providers ...Provider) Provider {
	return chain(providers)
}

type chain []Provider

func (c chain) CPUs() ([]CPU, error) {
	var errs error
	for _, p := range c {
		if p == nil {
			continue
		}
		cpus, err := p.CPUs()
		if err == nil {
			return cpus, nil
		}
		errs = errors.Join(errs, err)
	}
	if errs == nil {
		return nil, fmt.Errorf("no topology provider")
	}
	return nil, errs
}
