// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "errors"

var (
	// ErrUnsupportedHardware is returned by Init when any CPU lacks RAPL
	// support. Callers may fall back to another energy source.
	ErrUnsupportedHardware = errors.New("unsupported hardware")

	// ErrRegisterUnavailable is returned when the register channel of a CPU
	// that passed the support probe cannot be opened.
	ErrRegisterUnavailable = errors.New("register channel unavailable")

	// ErrInconsistentCounterState is returned when a counter detected as
	// supported fails to read or reads zero.
	ErrInconsistentCounterState = errors.New("counter has been created but registers are not present")

	// ErrInvalidDomain is returned for an unknown domain
	ErrInvalidDomain = errors.New("invalid energy counter specification")

	ErrUnknownCPU     = errors.New("unknown cpu")
	ErrNotInitialized = errors.New("rapl counter not initialized")
	ErrAlreadyStarted = errors.New("rapl counter already initialized")
	ErrClosed         = errors.New("rapl counter closed")
)
