// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	t.Run("defaults without layers", func(t *testing.T) {
		cfg, err := (&Builder{}).Build()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("later layers win", func(t *testing.T) {
		cfg, err := (&Builder{}).
			Merge("log:\n  level: debug\nsampler:\n  timeout: 3s\n").
			Merge("log:\n  level: error\n").
			Build()
		require.NoError(t, err)

		assert.Equal(t, "error", cfg.Log.Level)
		assert.Equal(t, 3*time.Second, cfg.Sampler.Timeout)
		assert.Equal(t, "text", cfg.Log.Format)
	})

	t.Run("explicit false overrides true", func(t *testing.T) {
		cfg, err := (&Builder{}).Merge("rapl:\n  enabled: false\n").Build()
		require.NoError(t, err)
		assert.False(t, *cfg.Rapl.Enabled)
		assert.True(t, *cfg.Exporter.Prometheus.Enabled, "absent bools keep their value")
	})

	t.Run("custom base", func(t *testing.T) {
		base := DefaultConfig()
		base.Host.MSR = "/base/%d"
		cfg, err := (&Builder{}).Use(base).Merge("smartGauge:\n  chip: ' pm '\n").Build()
		require.NoError(t, err)
		assert.Equal(t, "/base/%d", cfg.Host.MSR)
		assert.Equal(t, "pm", cfg.SmartGauge.Chip)
	})

	t.Run("files", func(t *testing.T) {
		dir := t.TempDir()
		first := filepath.Join(dir, "10-base.yaml")
		second := filepath.Join(dir, "20-site.yaml")
		require.NoError(t, os.WriteFile(first, []byte("log:\n  format: json\n"), 0o644))
		require.NoError(t, os.WriteFile(second, []byte("web:\n  listenAddresses: [':9999']\n"), 0o644))

		cfg, err := (&Builder{}).MergeFiles(first, second).Build()
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, []string{":9999"}, cfg.Web.ListenAddresses)
	})

	t.Run("errors are collected", func(t *testing.T) {
		_, err := (&Builder{}).
			MergeFiles(filepath.Join(t.TempDir(), "missing.yaml")).
			Merge("log: [").
			Build()
		assert.ErrorContains(t, err, "failed to read config file")
		assert.ErrorContains(t, err, "failed to parse YAML")
	})
	t.Run("all sections from a file", func(t *testing.T) {
		base := hostDirs(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		doc := `
log:
  level: debug
  format: json
host:
  sysfs: ` + base.Host.SysFS + `
  procfs: ` + base.Host.ProcFS + `
  msr: /host/dev/cpu/%d/msr
rapl:
  enabled: false
  refreshInterval: 30s
smartGauge:
  enabled: true
  chip: " gauge "
exporter:
  prometheus:
    metricsLevel: [node, info]
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		cfg, err := (&Builder{}).MergeFiles(path).Build()
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, "/host/dev/cpu/%d/msr", cfg.Host.MSR)
		assert.False(t, *cfg.Rapl.Enabled)
		assert.Equal(t, 30*time.Second, cfg.Rapl.RefreshInterval)
		assert.True(t, *cfg.SmartGauge.Enabled)
		assert.Equal(t, "gauge", cfg.SmartGauge.Chip, "values are trimmed")
		assert.Equal(t, MetricsLevelNode|MetricsLevelInfo, cfg.Exporter.Prometheus.MetricsLevel)

		// untouched sections keep their defaults
		assert.True(t, *cfg.Exporter.Prometheus.Enabled)
		assert.Equal(t, []string{DefaultListenAddress}, cfg.Web.ListenAddresses)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := (&Builder{}).Merge("exporter:\n  prometheus:\n    metricsLevel: process\n").Build()
		assert.ErrorContains(t, err, "unknown metrics level")

		cfg, err := (&Builder{}).Merge("log:\n  level: chatty\n").Build()
		require.NoError(t, err, "values are checked by Validate")
		assert.ErrorContains(t, cfg.Validate(SkipHostValidation), "invalid log level: chatty")
	})
}
