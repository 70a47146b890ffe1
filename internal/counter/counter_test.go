// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockCounter(name string, initErr error) *mockCounter {
	c := &mockCounter{}
	c.On("Name").Return(name)
	c.On("Init").Return(initErr)
	return c
}

func TestSelect(t *testing.T) {
	t.Run("First usable wins", func(t *testing.T) {
		rapl := newMockCounter("rapl-msr", errors.New("unsupported hardware"))
		gauge := newMockCounter("smart-gauge", nil)
		sampler := newMockCounter("sampler", nil)

		got, err := Select(slog.Default(), rapl, nil, gauge, sampler)
		require.NoError(t, err)
		assert.Same(t, gauge, got)

		rapl.AssertCalled(t, "Init")
		sampler.AssertNotCalled(t, "Init")
	})

	t.Run("None usable", func(t *testing.T) {
		a := newMockCounter("a", errors.New("nope"))
		b := newMockCounter("b", errors.New("nope"))

		got, err := Select(slog.Default(), a, b)
		assert.ErrorIs(t, err, ErrNoCounter)
		assert.Nil(t, got)
	})

	t.Run("No candidates", func(t *testing.T) {
		_, err := Select(slog.Default())
		assert.ErrorIs(t, err, ErrNoCounter)
	})
}
