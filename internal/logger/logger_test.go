// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		level     string
		logsInfo  bool
		logsDebug bool
	}{
		{name: "json debug", format: "json", level: "debug", logsInfo: true, logsDebug: true},
		{name: "json info", format: "json", level: "info", logsInfo: true},
		{name: "text warn", format: "text", level: "warn"},
		{name: "text error", format: "text", level: "error"},
		{name: "upper case level", format: "text", level: "INFO", logsInfo: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(tc.level, tc.format, &buf)
			require.NoError(t, err)

			l.Debug("debug message")
			l.Info("info message")
			out := buf.String()

			assert.Equal(t, tc.logsInfo, strings.Contains(out, "info message"))
			assert.Equal(t, tc.logsDebug, strings.Contains(out, "debug message"))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("info", "json", &buf)
	require.NoError(t, err)

	l.Info("read counter", "cpu", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "read counter", entry[slog.MessageKey])
	assert.Equal(t, float64(3), entry["cpu"])
	assert.Contains(t, entry, slog.SourceKey)
}

func TestNew_TextShortSource(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("info", "text", &buf)
	require.NoError(t, err)

	l.Info("hello")
	assert.Contains(t, buf.String(), "source=internal/logger/logger_test.go:")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("verbose", "text", &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid log level")

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid log format")
}
