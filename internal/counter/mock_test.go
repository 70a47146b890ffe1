// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/sustainable-computing-io/raplmeter/internal/device"
)

type mockMeter struct {
	mock.Mock
}

func (m *mockMeter) Open() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockMeter) WattHours() (float64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockMeter) Close() error {
	args := m.Called()
	return args.Error(0)
}

type mockSumReader struct {
	mock.Mock
}

func (m *mockSumReader) Exists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockSumReader) ReadSum(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockCounter) Init() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockCounter) Joules() (device.Joules, error) {
	args := m.Called()
	return args.Get(0).(device.Joules), args.Error(1)
}

func (m *mockCounter) Reset() error {
	args := m.Called()
	return args.Error(0)
}
