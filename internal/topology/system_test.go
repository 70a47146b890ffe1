// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeInfo(stats []cpu.InfoStat, err error) *systemProvider {
	return &systemProvider{
		info:    func(context.Context) ([]cpu.InfoStat, error) { return stats, err },
		timeout: time.Second,
	}
}

func TestSystemProvider_CPUs(t *testing.T) {
	p := fakeInfo([]cpu.InfoStat{
		{CPU: 3, PhysicalID: "1", VendorID: "GenuineIntel", Family: "6"},
		{CPU: 0, PhysicalID: "0", VendorID: "GenuineIntel", Family: "6"},
		{CPU: 1, PhysicalID: "1", VendorID: "GenuineIntel", Family: "6"},
		{CPU: 2, PhysicalID: "0", VendorID: "GenuineIntel", Family: "6"},
	}, nil)

	cpus, err := p.CPUs()
	require.NoError(t, err)
	assert.Equal(t, []CPU{
		{ID: 0, Core: 0, VendorID: "GenuineIntel", Family: "6"},
		{ID: 1, Core: 1, VendorID: "GenuineIntel", Family: "6"},
	}, cpus)
}

func TestSystemProvider_Errors(t *testing.T) {
	_, err := fakeInfo(nil, errors.New("permission denied")).CPUs()
	assert.ErrorContains(t, err, "permission denied")

	_, err = fakeInfo(nil, nil).CPUs()
	assert.ErrorContains(t, err, "no processors")

	_, err = fakeInfo([]cpu.InfoStat{{CPU: 0, PhysicalID: "x"}}, nil).CPUs()
	assert.ErrorContains(t, err, "invalid physical id")
}

func TestFirstOf(t *testing.T) {
	broken := fakeInfo(nil, errors.New("no cpuinfo"))
	static := Static{{ID: 0, Core: 0, VendorID: "GenuineIntel", Family: "6"}}

	cpus, err := FirstOf(nil, broken, static).CPUs()
	require.NoError(t, err)
	assert.Equal(t, []CPU(static), cpus)

	_, err = FirstOf(broken, Static{}).CPUs()
	assert.ErrorContains(t, err, "no cpuinfo")
	assert.ErrorContains(t, err, "no cpus configured")

	_, err = FirstOf().CPUs()
	assert.ErrorContains(t, err, "no topology provider")
}
