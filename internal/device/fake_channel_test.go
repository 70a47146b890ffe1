// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sustainable-computing-io/raplmeter/internal/topology"
)

var errRegisterAbsent = errors.New("register not present")

// fakeCore is the register file of one simulated logical core. It is shared
// by every channel opened on the core.
type fakeCore struct {
	mu          sync.Mutex
	regs        map[uint32]uint64
	fail        map[uint32]error
	reads       int
	unavailable bool
}

// newIntelCore returns a core with energy unit 0.5^14 J, 95 W TDP and all
// four energy counters present
func newIntelCore() *fakeCore {
	return &fakeCore{
		regs: map[uint32]uint64{
			MSRRaplPowerUnit:    0xA0E03, // power 1/8 W, energy 0.5^14 J, time 0.5^10 s
			MSRPkgPowerInfo:     760,     // 95 W
			MSRPkgEnergyStatus:  1000,
			MSRPP0EnergyStatus:  2000,
			MSRPP1EnergyStatus:  3000,
			MSRDRAMEnergyStatus: 4000,
		},
		fail: map[uint32]error{},
	}
}

func (c *fakeCore) set(reg uint32, v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[reg] = v
}

// add advances a 32-bit energy counter by n, wrapping like the hardware
func (c *fakeCore) add(reg uint32, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[reg] = (c.regs[reg] + n) & 0xFFFFFFFF
}

func (c *fakeCore) remove(reg uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.regs, reg)
}

func (c *fakeCore) failWith(reg uint32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[reg] = err
}

func (c *fakeCore) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

type fakeChannel struct {
	core *fakeCore

	mu     sync.Mutex
	closed bool
}

var _ RegisterChannel = (*fakeChannel)(nil)

func (f *fakeChannel) Available() bool {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()
	return !f.core.unavailable
}

func (f *fakeChannel) Read(reg uint32) (uint64, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return 0, errors.New("channel closed")
	}

	f.core.mu.Lock()
	defer f.core.mu.Unlock()
	f.core.reads++
	if f.core.unavailable {
		return 0, errors.New("channel unavailable")
	}
	if err := f.core.fail[reg]; err != nil {
		return 0, err
	}
	v, ok := f.core.regs[reg]
	if !ok {
		return 0, fmt.Errorf("0x%x: %w", reg, errRegisterAbsent)
	}
	return v, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeMachine hands out channels on its cores and remembers them
type fakeMachine struct {
	cpus  topology.Static
	cores map[int]*fakeCore

	mu     sync.Mutex
	opened []*fakeChannel
}

// newFakeMachine returns a machine with one Intel family 6 package per id,
// each package represented by core id*10
func newFakeMachine(ids ...int) *fakeMachine {
	m := &fakeMachine{cores: map[int]*fakeCore{}}
	for _, id := range ids {
		core := id * 10
		m.cpus = append(m.cpus, topology.CPU{ID: id, Core: core, VendorID: "GenuineIntel", Family: "6"})
		m.cores[core] = newIntelCore()
	}
	return m
}

// core returns the register file of the package with the given cpu id
func (m *fakeMachine) core(cpuID int) *fakeCore {
	return m.cores[cpuID*10]
}

func (m *fakeMachine) opener() ChannelOpener {
	return func(core int) RegisterChannel {
		c, ok := m.cores[core]
		if !ok {
			c = &fakeCore{unavailable: true}
		}
		ch := &fakeChannel{core: c}
		m.mu.Lock()
		m.opened = append(m.opened, ch)
		m.mu.Unlock()
		return ch
	}
}

func (m *fakeMachine) allClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.opened {
		if !ch.isClosed() {
			return false
		}
	}
	return true
}
