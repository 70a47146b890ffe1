// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sustainable-computing-io/raplmeter/internal/topology"
	"k8s.io/utils/clock"
)

const numDomains = 4

// cpuState is the accounting state of one CPU package
type cpuState struct {
	cpu     topology.CPU
	channel RegisterChannel

	// last raw counter observed and joules accumulated since the last reset,
	// indexed by Domain
	last   [numDomains]uint32
	joules [numDomains]Joules
}

// RAPLCounter accumulates RAPL energy counters of every CPU package of the
// machine into joule totals that do not wrap around.
//
// All accounting state is guarded by a single mutex shared by foreground
// queries and the background refresher. Units, domain support and the set of
// CPUs are fixed by Init and read without locking; Init must therefore
// complete before any other method is used concurrently.
type RAPLCounter struct {
	logger   *slog.Logger
	topology topology.Provider
	open     ChannelOpener
	clock    clock.WithTicker

	refreshOverride  time.Duration
	refresherEnabled bool

	// fixed after Init
	units           Units
	support         DomainSupport
	cpuIDs          []int
	refreshInterval time.Duration

	mu     sync.Mutex
	states map[int]*cpuState
	closed bool

	stopRefresher context.CancelFunc
	refresherDone chan struct{}
	closeOnce     sync.Once
}

// NewRAPLCounter creates a RAPLCounter for the CPUs enumerated by topo whose
// registers are read through channels returned by open
func NewRAPLCounter(topo topology.Provider, open ChannelOpener, applyOpts ...RAPLOptionFn) *RAPLCounter {
	opts := DefaultRAPLOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &RAPLCounter{
		logger:           opts.logger.With("service", "rapl-msr"),
		topology:         topo,
		open:             open,
		clock:            opts.clock,
		refreshOverride:  opts.refreshInterval,
		refresherEnabled: opts.refresher,
	}
}

func (r *RAPLCounter) Name() string {
	return "rapl-msr"
}

// Init probes every CPU for RAPL support and, if all of them are supported,
// calibrates the units, detects the sub-domains available on every CPU,
// captures the baseline counters and starts the background refresher.
//
// Init returns an error wrapping ErrUnsupportedHardware if any CPU is not
// supported; in that case nothing is retained and no refresher is started.
func (r *RAPLCounter) Init() error {
	r.mu.Lock()
	started := r.states != nil || r.closed
	r.mu.Unlock()
	if started {
		return ErrAlreadyStarted
	}

	cpus, err := r.topology.CPUs()
	if err != nil {
		return fmt.Errorf("failed to enumerate cpus: %w", err)
	}
	if len(cpus) == 0 {
		return fmt.Errorf("%w: no cpus enumerated", ErrUnsupportedHardware)
	}

	for _, cpu := range cpus {
		ch := r.open(cpu.Core)
		supported := isCPUSupported(cpu, ch)
		if err := ch.Close(); err != nil {
			r.logger.Debug("Failed to close probe channel", "cpu", cpu.ID, "error", err)
		}
		if !supported {
			r.logger.Info("RAPL not supported", "cpu", cpu.ID, "core", cpu.Core,
				"vendor", cpu.VendorID, "family", cpu.Family)
			return fmt.Errorf("%w: %s", ErrUnsupportedHardware, cpu)
		}
	}

	states, err := r.openStates(cpus)
	if err != nil {
		return err
	}

	ids := make([]int, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	// units are the same on every package; read them from any of them
	units, err := readUnits(states[ids[len(ids)-1]].channel)
	if err != nil {
		closeStates(states, r.logger)
		return fmt.Errorf("failed to calibrate units: %w", err)
	}
	wrap := units.WrapInterval()
	if wrap <= 0 {
		closeStates(states, r.logger)
		return fmt.Errorf("%w: invalid thermal spec power %.2fW", ErrUnsupportedHardware, units.ThermalSpecPower)
	}

	support := DomainSupport{Cores: true, Graphic: true, DRAM: true}
	for _, id := range ids {
		ch := states[id].channel
		support.Cores = support.Cores && hasDomainCounter(ch, DomainCores)
		support.Graphic = support.Graphic && hasDomainCounter(ch, DomainGraphic)
		support.DRAM = support.DRAM && hasDomainCounter(ch, DomainDRAM)
	}

	r.mu.Lock()
	r.units = units
	r.support = support
	r.cpuIDs = ids
	r.refreshInterval = r.boundedRefreshInterval(wrap)
	r.states = states
	err = r.resetLocked()
	if err != nil {
		r.states = nil
	}
	r.mu.Unlock()
	if err != nil {
		closeStates(states, r.logger)
		return fmt.Errorf("failed to capture baseline counters: %w", err)
	}

	r.logger.Info("RAPL counter initialized",
		"cpus", len(ids),
		"energy_unit_j", units.EnergyPerUnit,
		"thermal_spec_power_w", units.ThermalSpecPower,
		"wrap_interval", wrap,
		"refresh_interval", r.refreshInterval,
		"cores", support.Cores,
		"graphic", support.Graphic,
		"dram", support.DRAM)

	if r.refresherEnabled {
		r.startRefresher()
	}
	return nil
}

func (r *RAPLCounter) openStates(cpus []topology.CPU) (map[int]*cpuState, error) {
	states := make(map[int]*cpuState, len(cpus))
	for _, cpu := range cpus {
		if _, dup := states[cpu.ID]; dup {
			closeStates(states, r.logger)
			return nil, fmt.Errorf("duplicate cpu id %d", cpu.ID)
		}
		ch := r.open(cpu.Core)
		if !ch.Available() {
			_ = ch.Close()
			closeStates(states, r.logger)
			return nil, fmt.Errorf("%w: cpu %d (core %d)", ErrRegisterUnavailable, cpu.ID, cpu.Core)
		}
		states[cpu.ID] = &cpuState{cpu: cpu, channel: ch}
	}
	return states, nil
}

func closeStates(states map[int]*cpuState, logger *slog.Logger) error {
	var errs error
	for id, st := range states {
		if err := st.channel.Close(); err != nil {
			logger.Warn("Failed to close register channel", "cpu", id, "error", err)
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// boundedRefreshInterval returns the configured refresh interval if it is
// short enough to observe every counter at least twice per wrap, otherwise
// half of the wrap interval
func (r *RAPLCounter) boundedRefreshInterval(wrap time.Duration) time.Duration {
	safe := wrap / 2
	if r.refreshOverride <= 0 {
		return safe
	}
	if r.refreshOverride > safe {
		r.logger.Warn("Refresh interval too long to detect counter wraps, clamping",
			"requested", r.refreshOverride, "max", safe)
		return safe
	}
	return r.refreshOverride
}

func (r *RAPLCounter) startRefresher() {
	ctx, cancel := context.WithCancel(context.Background())
	rf := newRefresher(ctx, r, r.refreshInterval, r.clock, r.logger)
	r.stopRefresher = cancel
	r.refresherDone = rf.done
	go rf.run()
}

// Close stops the refresher, waits for it to terminate and releases the
// register channels. Queries after Close return ErrClosed.
func (r *RAPLCounter) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.stopRefresher != nil {
			r.stopRefresher()
			<-r.refresherDone
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.closed = true
		if r.states != nil {
			err = closeStates(r.states, r.logger)
			r.states = nil
		}
		r.logger.Info("RAPL counter closed")
	})
	return err
}

// Shutdown implements service.Shutdowner
func (r *RAPLCounter) Shutdown() error {
	return r.Close()
}

// Units returns the calibration units found by Init
func (r *RAPLCounter) Units() Units {
	return r.units
}

// WrapInterval returns the worst case time for an energy counter to wrap
func (r *RAPLCounter) WrapInterval() time.Duration {
	return r.units.WrapInterval()
}

// RefreshInterval returns the period of the background refresher
func (r *RAPLCounter) RefreshInterval() time.Duration {
	return r.refreshInterval
}

// CPUIDs returns the ids of the CPUs tracked, in ascending order
func (r *RAPLCounter) CPUIDs() []int {
	ids := make([]int, len(r.cpuIDs))
	copy(ids, r.cpuIDs)
	return ids
}

func (r *RAPLCounter) HasCores() bool {
	return r.support.Cores
}

func (r *RAPLCounter) HasGraphic() bool {
	return r.support.Graphic
}

func (r *RAPLCounter) HasDRAM() bool {
	return r.support.DRAM
}

// CPUJoules returns the package energy of the CPU since the last reset
func (r *RAPLCounter) CPUJoules(cpuID int) (Joules, error) {
	return r.domainJoules(cpuID, DomainPackage)
}

// CoresJoules returns the core energy of the CPU since the last reset, or 0
// if the machine has no core counters
func (r *RAPLCounter) CoresJoules(cpuID int) (Joules, error) {
	return r.domainJoules(cpuID, DomainCores)
}

// GraphicJoules returns the integrated graphics energy of the CPU since the
// last reset, or 0 if the machine has no graphics counters
func (r *RAPLCounter) GraphicJoules(cpuID int) (Joules, error) {
	return r.domainJoules(cpuID, DomainGraphic)
}

// DRAMJoules returns the DRAM energy of the CPU since the last reset, or 0
// if the machine has no DRAM counters
func (r *RAPLCounter) DRAMJoules(cpuID int) (Joules, error) {
	return r.domainJoules(cpuID, DomainDRAM)
}

// DomainJoules returns the energy of any domain of the CPU since the last reset
func (r *RAPLCounter) DomainJoules(cpuID int, d Domain) (Joules, error) {
	return r.domainJoules(cpuID, d)
}

// Components returns the energy of every domain of the CPU. Each domain is
// updated under its own lock acquisition, so the result is not a joint
// snapshot when other goroutines read concurrently.
func (r *RAPLCounter) Components(cpuID int) (Components, error) {
	var (
		c   Components
		err error
	)
	if c.CPU, err = r.CPUJoules(cpuID); err != nil {
		return Components{}, err
	}
	if c.Cores, err = r.CoresJoules(cpuID); err != nil {
		return Components{}, err
	}
	if c.Graphic, err = r.GraphicJoules(cpuID); err != nil {
		return Components{}, err
	}
	if c.DRAM, err = r.DRAMJoules(cpuID); err != nil {
		return Components{}, err
	}
	return c, nil
}

// ComponentsAll returns the per-domain energy summed over every CPU
func (r *RAPLCounter) ComponentsAll() (Components, error) {
	ids, err := r.trackedIDs()
	if err != nil {
		return Components{}, err
	}

	var total Components
	for _, id := range ids {
		c, err := r.Components(id)
		if err != nil {
			return Components{}, err
		}
		total = total.Add(c)
	}
	return total, nil
}

// CPUJoulesAll returns the package energy summed over every CPU
func (r *RAPLCounter) CPUJoulesAll() (Joules, error) {
	return r.domainJoulesAll(DomainPackage)
}

// CoresJoulesAll returns the core energy summed over every CPU
func (r *RAPLCounter) CoresJoulesAll() (Joules, error) {
	return r.domainJoulesAll(DomainCores)
}

// GraphicJoulesAll returns the graphics energy summed over every CPU
func (r *RAPLCounter) GraphicJoulesAll() (Joules, error) {
	return r.domainJoulesAll(DomainGraphic)
}

// DRAMJoulesAll returns the DRAM energy summed over every CPU
func (r *RAPLCounter) DRAMJoulesAll() (Joules, error) {
	return r.domainJoulesAll(DomainDRAM)
}

// Joules returns the energy of the whole machine since the last reset:
// the packages plus their DRAM
func (r *RAPLCounter) Joules() (Joules, error) {
	c, err := r.ComponentsAll()
	if err != nil {
		return 0, err
	}
	return c.Total(), nil
}

func (r *RAPLCounter) domainJoulesAll(d Domain) (Joules, error) {
	ids, err := r.trackedIDs()
	if err != nil {
		return 0, err
	}

	var total Joules
	for _, id := range ids {
		j, err := r.domainJoules(id, d)
		if err != nil {
			return 0, err
		}
		total += j
	}
	return total, nil
}

func (r *RAPLCounter) domainJoules(cpuID int, d Domain) (Joules, error) {
	if _, err := d.Register(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.stateLocked(cpuID)
	if err != nil {
		return 0, err
	}
	if !r.support.Supports(d) {
		return 0, nil
	}
	return r.updateLocked(st, d)
}

// trackedIDs returns the CPU ids once the counter is initialized and open
func (r *RAPLCounter) trackedIDs() ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.states == nil {
		return nil, ErrNotInitialized
	}
	return r.cpuIDs, nil
}

func (r *RAPLCounter) stateLocked(cpuID int) (*cpuState, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.states == nil {
		return nil, ErrNotInitialized
	}
	st, ok := r.states[cpuID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCPU, cpuID)
	}
	return st, nil
}

// updateLocked reads the current counter of the domain, adds the energy
// consumed since the previous observation and returns the new total
func (r *RAPLCounter) updateLocked(st *cpuState, d Domain) (Joules, error) {
	cur, err := readEnergyCounter(st, d)
	if err != nil {
		return 0, err
	}
	st.joules[d] += r.units.Joules(counterDelta(st.last[d], cur))
	st.last[d] = cur
	return st.joules[d], nil
}

// Reset zeroes the energy of every CPU and domain and takes the current
// counters as the new baseline
func (r *RAPLCounter) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.states == nil {
		return ErrNotInitialized
	}
	return r.resetLocked()
}

// resetLocked reads every counter before touching any state, so a failed
// read leaves all CPUs as they were
func (r *RAPLCounter) resetLocked() error {
	baselines := make([][numDomains]uint32, len(r.cpuIDs))
	for i, id := range r.cpuIDs {
		st := r.states[id]
		for _, d := range Domains {
			if !r.support.Supports(d) {
				continue
			}
			cur, err := readEnergyCounter(st, d)
			if err != nil {
				return err
			}
			baselines[i][d] = cur
		}
	}

	for i, id := range r.cpuIDs {
		st := r.states[id]
		st.last = baselines[i]
		st.joules = [numDomains]Joules{}
	}
	return nil
}

// refreshAll observes every counter of every CPU
func (r *RAPLCounter) refreshAll() error {
	for _, id := range r.cpuIDs {
		if _, err := r.Components(id); err != nil {
			return fmt.Errorf("failed to refresh cpu %d: %w", id, err)
		}
	}
	return nil
}

// readEnergyCounter returns the low 32 bits of the domain's energy status
// register. Failing or zero reads are reported as ErrInconsistentCounterState
// since the domain was found to be present during Init.
func readEnergyCounter(st *cpuState, d Domain) (uint32, error) {
	reg, err := d.Register()
	if err != nil {
		return 0, err
	}

	v, err := st.channel.Read(reg)
	if err != nil {
		return 0, fmt.Errorf("%w: cpu %d %s: %w", ErrInconsistentCounterState, st.cpu.ID, d, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: cpu %d %s reads zero", ErrInconsistentCounterState, st.cpu.ID, d)
	}
	return uint32(v & 0xFFFFFFFF), nil
}
