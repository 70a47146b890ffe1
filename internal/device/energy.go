// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
)

// Joules represents an amount of energy in joules.
// Use functions MicroJoules and WattHours to get the value in other units
type Joules float64

const (
	microJoulesPerJoule = 1_000_000
	joulesPerWattHour   = 3600.0
)

// JoulesFromWattHours converts a watt-hour reading to Joules
func JoulesFromWattHours(wh float64) Joules {
	return Joules(wh * joulesPerWattHour)
}

// JoulesFromMicroJoules converts a microjoule reading to Joules
func JoulesFromMicroJoules(uj uint64) Joules {
	return Joules(float64(uj) / microJoulesPerJoule)
}

func (j Joules) MicroJoules() float64 {
	return float64(j) * microJoulesPerJoule
}

func (j Joules) WattHours() float64 {
	return float64(j) / joulesPerWattHour
}

func (j Joules) String() string {
	return fmt.Sprintf("%.2fJ", float64(j))
}

// Components holds the energy of a CPU package and its sub-domains.
type Components struct {
	CPU     Joules
	Cores   Joules
	Graphic Joules
	DRAM    Joules
}

// Add returns the per-domain sum of c and o
func (c Components) Add(o Components) Components {
	return Components{
		CPU:     c.CPU + o.CPU,
		Cores:   c.Cores + o.Cores,
		Graphic: c.Graphic + o.Graphic,
		DRAM:    c.DRAM + o.DRAM,
	}
}

// Total returns package plus DRAM energy. Cores and graphic are sub-domains
// of the package and are already part of CPU.
func (c Components) Total() Joules {
	return c.CPU + c.DRAM
}
