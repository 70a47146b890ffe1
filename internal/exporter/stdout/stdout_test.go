// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/raplmeter/internal/device"
	testingclock "k8s.io/utils/clock/testing"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSource) Joules() (device.Joules, error) {
	args := m.Called()
	return args.Get(0).(device.Joules), args.Error(1)
}

type staticComponents map[int]device.Components

func (s staticComponents) CPUIDs() []int {
	ids := []int{}
	for i := 0; i < 8; i++ {
		if _, ok := s[i]; ok {
			ids = append(ids, i)
		}
	}
	return ids
}

func (s staticComponents) Components(id int) (device.Components, error) {
	if c, ok := s[id]; ok {
		return c, nil
	}
	return device.Components{}, errors.New("unknown cpu")
}

// syncBuffer is a WriteCloser safe to read while the exporter writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Close() error {
	return nil
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []OptionFn
		out      io.WriteCloser
		interval time.Duration
	}{{
		name:     "default options",
		opts:     []OptionFn{},
		out:      os.Stdout,
		interval: 2 * time.Second,
	}, {
		name: "custom options",
		opts: []OptionFn{
			WithLogger(slog.Default()),
			WithOutput(os.Stderr),
			WithInterval(20 * time.Second),
		},
		out:      os.Stderr,
		interval: 20 * time.Second,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &MockSource{}
			exporter := NewExporter(source, tt.opts...)
			assert.Equal(t, "stdout", exporter.Name())
			assert.NotNil(t, exporter.logger)
			assert.Same(t, source, exporter.source)
			assert.Same(t, tt.out, exporter.out)
			assert.Equal(t, tt.interval, exporter.interval)
		})
	}
}

func TestExporter_InitRunShutdown(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	source := &MockSource{}
	source.On("Name").Return("rapl-msr")
	source.On("Joules").Return(device.Joules(123.456), nil)

	out := &syncBuffer{}
	exporter := NewExporter(source,
		WithOutput(out),
		WithInterval(time.Second),
		WithClock(fakeClock),
		WithComponents(staticComponents{
			0: {CPU: 100, Cores: 60, Graphic: 1, DRAM: 20},
			1: {CPU: 3.5},
		}),
	)
	require.NoError(t, exporter.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- exporter.Run(ctx) }()

	fakeClock.Step(time.Second)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "123.46J")
	}, time.Second, 10*time.Millisecond)

	report := out.String()
	assert.Contains(t, report, "CPU")
	assert.Contains(t, report, "100.00J")
	assert.Contains(t, report, "60.00J")
	assert.Contains(t, report, "3.50J")
	assert.Contains(t, report, "rapl-msr")

	cancel()
	assert.NoError(t, <-done)
	assert.NoError(t, exporter.Shutdown())
}

func TestExporter_SourceError(t *testing.T) {
	source := &MockSource{}
	source.On("Name").Return("sampler")
	source.On("Joules").Return(device.Joules(0), errors.New("daemon down"))

	out := &syncBuffer{}
	exporter := NewExporter(source, WithOutput(out))
	exporter.report()
	assert.Empty(t, out.String())
	source.AssertExpectations(t)
}

func TestWriteTable(t *testing.T) {
	buf := bytes.Buffer{}
	writeTable(&buf, []string{"CPU", "Package", "Cores", "Graphic", "DRAM"},
		[][]string{componentsRow("0", device.Components{CPU: 12300, Cores: 2340, DRAM: 5})})

	out := buf.String()
	assert.Contains(t, out, "12300.00J")
	assert.Contains(t, out, "2340.00J")
	assert.Contains(t, out, "0.00J")
	assert.Contains(t, out, "5.00J")
}
