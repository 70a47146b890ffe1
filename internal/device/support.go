// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"strings"

	"github.com/sustainable-computing-io/raplmeter/internal/topology"
)

const (
	supportedVendor = "GenuineIntel"
	supportedFamily = "6"
)

// isCPUSupported reports whether RAPL energy counters can be used on cpu.
// A register that cannot be read and a register that reads zero are treated
// alike.
func isCPUSupported(cpu topology.CPU, ch RegisterChannel) bool {
	if !strings.HasPrefix(cpu.VendorID, supportedVendor) || cpu.Family != supportedFamily {
		return false
	}
	if ch == nil || !ch.Available() {
		return false
	}
	for _, reg := range []uint32{MSRRaplPowerUnit, MSRPkgPowerInfo, MSRPkgEnergyStatus} {
		if !registerPresent(ch, reg) {
			return false
		}
	}
	return true
}

// hasDomainCounter reports whether the energy status register of the domain
// is present on the CPU behind ch
func hasDomainCounter(ch RegisterChannel, d Domain) bool {
	reg, err := d.Register()
	if err != nil {
		return false
	}
	return registerPresent(ch, reg)
}

func registerPresent(ch RegisterChannel, reg uint32) bool {
	v, err := ch.Read(reg)
	return err == nil && v != 0
}
