// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

// counterDelta returns the number of units a 32-bit energy counter advanced
// from prev to cur. A smaller cur means the counter wrapped exactly once;
// more than one wrap between observations cannot be detected and is
// prevented by the refresher.
func counterDelta(prev, cur uint32) uint32 {
	if cur >= prev {
		return cur - prev
	}
	return (0xFFFFFFFF - prev) + 1 + cur
}
