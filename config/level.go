// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Level selects which metric families the Prometheus exporter publishes
type Level uint32

const (
	// MetricsLevelNode is the whole machine joules of the selected counter
	MetricsLevelNode Level = 1 << iota
	// MetricsLevelCPU is the per cpu and domain RAPL energy
	MetricsLevelCPU
	// MetricsLevelInfo is the cpu topology info series
	MetricsLevelInfo

	MetricsLevelAll = MetricsLevelNode | MetricsLevelCPU | MetricsLevelInfo
)

var levelNames = []struct {
	level Level
	name  string
}{
	{MetricsLevelNode, "node"},
	{MetricsLevelCPU, "cpu"},
	{MetricsLevelInfo, "info"},
}

func (l Level) names() []string {
	var names []string
	for _, ln := range levelNames {
		if l&ln.level != 0 {
			names = append(names, ln.name)
		}
	}
	return names
}

// String returns the enabled levels separated by commas
func (l Level) String() string {
	return strings.Join(l.names(), ",")
}

func (l Level) IsNodeEnabled() bool { return l&MetricsLevelNode != 0 }
func (l Level) IsCPUEnabled() bool  { return l&MetricsLevelCPU != 0 }
func (l Level) IsInfoEnabled() bool { return l&MetricsLevelInfo != 0 }

// ParseLevel parses level names into a Level; no names means all levels
func ParseLevel(levels []string) (Level, error) {
	if len(levels) == 0 {
		return MetricsLevelAll, nil
	}

	var result Level
	for _, level := range levels {
		name := strings.ToLower(strings.TrimSpace(level))
		found := false
		for _, ln := range levelNames {
			if ln.name == name {
				result |= ln.level
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown metrics level: %s", level)
		}
	}
	return result, nil
}

// ValidLevels returns the list of valid metrics levels
func ValidLevels() []string {
	return MetricsLevelAll.names()
}

// MarshalYAML writes a single level as a scalar and several as a list
func (l Level) MarshalYAML() (any, error) {
	names := l.names()
	if len(names) == 1 {
		return names[0], nil
	}
	return names, nil
}

// UnmarshalYAML accepts a single level name or a list of them
func (l *Level) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		parsed, err := ParseLevel([]string{single})
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}

	var multiple []string
	if err := unmarshal(&multiple); err != nil {
		return fmt.Errorf("cannot unmarshal metrics level: must be a string or array of strings")
	}
	parsed, err := ParseLevel(multiple)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MetricsLevelValue is a cumulative kingpin.Value parsing --metrics flags
type MetricsLevelValue struct {
	level *Level
	set   bool
}

func NewMetricsLevelValue(target *Level) *MetricsLevelValue {
	return &MetricsLevelValue{level: target}
}

// Set replaces the default on first use and accumulates afterwards
func (m *MetricsLevelValue) Set(value string) error {
	level, err := ParseLevel([]string{value})
	if err != nil {
		return err
	}
	if !m.set {
		*m.level = 0
		m.set = true
	}
	*m.level |= level
	return nil
}

func (m *MetricsLevelValue) String() string {
	return m.level.String()
}

func (m *MetricsLevelValue) IsCumulative() bool {
	return true
}
