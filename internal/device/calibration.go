// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"math"
	"time"
)

// Units are the RAPL scaling factors reported by MSR_RAPL_POWER_UNIT and the
// thermal spec power reported by MSR_PKG_POWER_INFO. Units are assumed to be
// identical on every package of the machine.
type Units struct {
	PowerPerUnit  float64 // watts
	EnergyPerUnit float64 // joules
	TimePerUnit   float64 // seconds

	// ThermalSpecPower is the rated maximum sustained power in watts
	ThermalSpecPower float64
}

// counterRange is the number of distinct values of a 32-bit energy counter
const counterRange = 1 << 32

// DecodeUnits derives Units from the raw unit and power info registers.
// See "Intel 64 and IA-32 Architectures Software Developer's Manual", Section 15.10.1
func DecodeUnits(unitReg, powerInfo uint64) Units {
	powerPerUnit := math.Pow(0.5, float64(unitReg&0xF))
	return Units{
		PowerPerUnit:     powerPerUnit,
		EnergyPerUnit:    math.Pow(0.5, float64((unitReg>>8)&0x1F)),
		TimePerUnit:      math.Pow(0.5, float64((unitReg>>16)&0xF)),
		ThermalSpecPower: powerPerUnit * float64(powerInfo&0x7FFF),
	}
}

// WrapInterval returns the shortest time in which an energy counter can wrap
// around completely, assuming the package draws its thermal spec power.
// It returns 0 if the thermal spec power is unknown.
func (u Units) WrapInterval() time.Duration {
	if u.ThermalSpecPower <= 0 {
		return 0
	}
	seconds := counterRange * u.EnergyPerUnit / u.ThermalSpecPower
	return time.Duration(seconds * float64(time.Second))
}

// Joules converts a raw counter delta to joules
func (u Units) Joules(delta uint32) Joules {
	return Joules(float64(delta) * u.EnergyPerUnit)
}

func readUnits(ch RegisterChannel) (Units, error) {
	unitReg, err := ch.Read(MSRRaplPowerUnit)
	if err != nil {
		return Units{}, fmt.Errorf("failed to read power unit register: %w", err)
	}
	powerInfo, err := ch.Read(MSRPkgPowerInfo)
	if err != nil {
		return Units{}, fmt.Errorf("failed to read power info register: %w", err)
	}
	return DecodeUnits(unitReg, powerInfo), nil
}
