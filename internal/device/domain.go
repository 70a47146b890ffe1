// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "fmt"

// Domain is a RAPL energy accounting scope
type Domain int

const (
	DomainPackage Domain = iota
	// DomainCores is Power Plane 0, the processor cores
	DomainCores
	// DomainGraphic is Power Plane 1, usually the integrated graphics
	DomainGraphic
	DomainDRAM
)

// Domains lists every domain in reporting order
var Domains = []Domain{DomainPackage, DomainCores, DomainGraphic, DomainDRAM}

// MSR register offsets for Intel RAPL
const (
	// MSRRaplPowerUnit holds the power, energy and time scaling factors
	MSRRaplPowerUnit = 0x606
	// MSRPkgPowerInfo holds the thermal spec power of the package
	MSRPkgPowerInfo = 0x614

	// Energy counters (32-bit, wraparound at ~4 billion)
	MSRPkgEnergyStatus  = 0x611
	MSRPP0EnergyStatus  = 0x639
	MSRPP1EnergyStatus  = 0x641
	MSRDRAMEnergyStatus = 0x619
)

var domainRegisters = map[Domain]uint32{
	DomainPackage: MSRPkgEnergyStatus,
	DomainCores:   MSRPP0EnergyStatus,
	DomainGraphic: MSRPP1EnergyStatus,
	DomainDRAM:    MSRDRAMEnergyStatus,
}

// Register returns the energy status MSR of the domain
func (d Domain) Register() (uint32, error) {
	reg, ok := domainRegisters[d]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDomain, int(d))
	}
	return reg, nil
}

func (d Domain) String() string {
	switch d {
	case DomainPackage:
		return "package"
	case DomainCores:
		return "cores"
	case DomainGraphic:
		return "graphic"
	case DomainDRAM:
		return "dram"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// DomainSupport records which sub-domains every CPU of the machine exposes.
// The package domain is always supported once the engine is initialized.
type DomainSupport struct {
	Cores   bool
	Graphic bool
	DRAM    bool
}

// Supports reports whether the domain can be read on this machine
func (s DomainSupport) Supports(d Domain) bool {
	switch d {
	case DomainPackage:
		return true
	case DomainCores:
		return s.Cores
	case DomainGraphic:
		return s.Graphic
	case DomainDRAM:
		return s.DRAM
	default:
		return false
	}
}
