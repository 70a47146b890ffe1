// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestRefresher_ObservesWraps(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	m := newFakeMachine(0)

	r := NewRAPLCounter(m.cpus, m.opener(), WithRAPLClock(fakeClock))
	require.NoError(t, r.Init())
	defer r.Close()

	require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)

	// three quarters of the counter range per period: without the
	// refresher the second advance would be indistinguishable from a
	// small one
	const quarter = 1 << 30
	tick := func() {
		before := m.core(0).readCount()
		fakeClock.Step(r.RefreshInterval())
		// one read per domain
		require.Eventually(t, func() bool {
			return m.core(0).readCount() >= before+len(Domains)
		}, time.Second, time.Millisecond)
	}

	m.core(0).add(MSRPkgEnergyStatus, 3*quarter)
	tick()
	m.core(0).add(MSRPkgEnergyStatus, 3*quarter)
	tick()

	j, err := r.CPUJoules(0)
	require.NoError(t, err)
	assert.InDelta(t, float64(r.Units().Joules(3*quarter))*2, float64(j), 1e-6)
}

func TestRefresher_NoTickBeforeInterval(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	m := newFakeMachine(0)

	r := NewRAPLCounter(m.cpus, m.opener(), WithRAPLClock(fakeClock))
	require.NoError(t, r.Init())
	defer r.Close()
	require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)

	before := m.core(0).readCount()
	fakeClock.Step(r.RefreshInterval() / 2)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, m.core(0).readCount())
}

func TestRefresher_CloseIsPrompt(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	m := newFakeMachine(0, 1)

	r := NewRAPLCounter(m.cpus, m.opener(), WithRAPLClock(fakeClock))
	require.NoError(t, r.Init())
	require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)

	// the clock never advances; Close must not wait for a full period
	closed := make(chan struct{})
	go func() {
		assert.NoError(t, r.Close())
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on the refresher")
	}

	assert.True(t, m.allClosed())

	reads := m.core(0).readCount()
	fakeClock.Step(r.RefreshInterval())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, reads, m.core(0).readCount(), "no reads after Close")
}

type countingTarget struct {
	calls atomic.Int32
	err   error
}

func (c *countingTarget) refreshAll() error {
	c.calls.Add(1)
	return c.err
}

func TestRefresher_KeepsRunningOnError(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	target := &countingTarget{err: errors.New("read failed")}

	ctx, cancel := context.WithCancel(context.Background())
	rf := newRefresher(ctx, target, time.Minute, fakeClock, slog.Default())
	go rf.run()

	require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)
	for i := int32(1); i <= 3; i++ {
		fakeClock.Step(time.Minute)
		require.Eventually(t, func() bool { return target.calls.Load() == i }, time.Second, time.Millisecond)
	}

	cancel()
	select {
	case <-rf.done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
