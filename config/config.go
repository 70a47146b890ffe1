// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`
		// MSR is the per core msr device path; %d is replaced by the core id
		MSR string `yaml:"msr"`
	}

	Rapl struct {
		Enabled *bool `yaml:"enabled"`
		// 0 refreshes every half wrap interval; larger values are clamped to it
		RefreshInterval time.Duration `yaml:"refreshInterval"`
	}

	SmartGauge struct {
		Enabled *bool `yaml:"enabled"`
		// hwmon chip name; empty picks the first chip with an energy sensor
		Chip string `yaml:"chip"`
	}

	Sampler struct {
		Enabled *bool         `yaml:"enabled"`
		URL     string        `yaml:"url"`
		Query   string        `yaml:"query"`
		Timeout time.Duration `yaml:"timeout"`
	}

	StdoutExporter struct {
		Enabled  *bool         `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
		MetricsLevel    Level    `yaml:"metricsLevel"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
	}

	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	PprofDebug struct {
		Enabled *bool `yaml:"enabled"`
	}

	Debug struct {
		Pprof PprofDebug `yaml:"pprof"`
	}

	Config struct {
		Log        Log        `yaml:"log"`
		Host       Host       `yaml:"host"`
		Rapl       Rapl       `yaml:"rapl"`
		SmartGauge SmartGauge `yaml:"smartGauge"`
		Sampler    Sampler    `yaml:"sampler"`
		Exporter   Exporter   `yaml:"exporter"`
		Web        Web        `yaml:"web"`
		Debug      Debug      `yaml:"debug"`
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	DefaultListenAddress = ":28283"
	DefaultMSRPath       = "/dev/cpu/%d/msr"

	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag  = "host.sysfs"
	HostProcFSFlag = "host.procfs"
	HostMSRFlag    = "host.msr"

	RaplEnabledFlag         = "rapl"
	RaplRefreshIntervalFlag = "rapl.refresh-interval"

	SmartGaugeEnabledFlag = "smart-gauge"
	SmartGaugeChipFlag    = "smart-gauge.chip"

	SamplerEnabledFlag = "sampler"
	SamplerURLFlag     = "sampler.url"
	SamplerQueryFlag   = "sampler.query"
	SamplerTimeoutFlag = "sampler.timeout"

	pprofEnabledFlag = "debug.pprof"

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	ExporterStdoutEnabledFlag  = "exporter.stdout"
	ExporterStdoutIntervalFlag = "exporter.stdout.interval"

	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	// NOTE: not a flag
	ExporterPrometheusDebugCollectors = "exporter.prometheus.debug-collectors"
	ExporterPrometheusMetricsFlag     = "metrics"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS:  "/sys",
			ProcFS: "/proc",
			MSR:    DefaultMSRPath,
		},
		Rapl: Rapl{
			Enabled: ptr.To(true),
		},
		SmartGauge: SmartGauge{
			Enabled: ptr.To(false),
		},
		Sampler: Sampler{
			Enabled: ptr.To(false),
			URL:     "http://localhost:9090",
			Timeout: 5 * time.Second,
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:  ptr.To(false),
				Interval: 2 * time.Second,
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(true),
				DebugCollectors: []string{"go"},
				MetricsLevel:    MetricsLevelAll,
			},
		},
		Debug: Debug{
			Pprof: PprofDebug{
				Enabled: ptr.To(false),
			},
		},
		Web: Web{
			ListenAddresses: []string{DefaultListenAddress},
		},
	}
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		flagsSet = map[string]bool{}
		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")

	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()
	hostProcFS := app.Flag(HostProcFSFlag, "Host procfs path").Default("/proc").ExistingDir()
	hostMSR := app.Flag(HostMSRFlag, "Per core msr device path; %d is the core id").Default(DefaultMSRPath).String()

	raplEnabled := app.Flag(RaplEnabledFlag, "Read energy from the RAPL model specific registers").Default("true").Bool()
	raplRefresh := app.Flag(RaplRefreshIntervalFlag,
		"Interval between background counter refreshes; 0 for half the wrap interval").Default("0s").Duration()

	gaugeEnabled := app.Flag(SmartGaugeEnabledFlag, "Read energy from a smart power meter exposed through hwmon").Default("false").Bool()
	gaugeChip := app.Flag(SmartGaugeChipFlag, "hwmon chip name of the smart power meter").String()

	samplerEnabled := app.Flag(SamplerEnabledFlag, "Read energy from an external sampling daemon").Default("false").Bool()
	samplerURL := app.Flag(SamplerURLFlag, "Prometheus API address of the sampling daemon").Default("http://localhost:9090").String()
	samplerQuery := app.Flag(SamplerQueryFlag, "PromQL query returning cumulative joules").String()
	samplerTimeout := app.Flag(SamplerTimeoutFlag, "Timeout of a single sampler query").Default("5s").Duration()

	enablePprof := app.Flag(pprofEnabledFlag, "Enable pprof debug endpoints").Default("false").Bool()
	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(DefaultListenAddress).Strings()

	stdoutEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("false").Bool()
	stdoutInterval := app.Flag(ExporterStdoutIntervalFlag, "Interval between stdout reports").Default("2s").Duration()
	prometheusEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("true").Bool()

	metricsLevel := MetricsLevelAll
	app.Flag(ExporterPrometheusMetricsFlag, "Metrics levels to export (node,cpu,info)").SetValue(NewMetricsLevelValue(&metricsLevel))

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}
		if flagsSet[HostProcFSFlag] {
			cfg.Host.ProcFS = *hostProcFS
		}
		if flagsSet[HostMSRFlag] {
			cfg.Host.MSR = *hostMSR
		}

		if flagsSet[RaplEnabledFlag] {
			cfg.Rapl.Enabled = raplEnabled
		}
		if flagsSet[RaplRefreshIntervalFlag] {
			cfg.Rapl.RefreshInterval = *raplRefresh
		}

		if flagsSet[SmartGaugeEnabledFlag] {
			cfg.SmartGauge.Enabled = gaugeEnabled
		}
		if flagsSet[SmartGaugeChipFlag] {
			cfg.SmartGauge.Chip = *gaugeChip
		}

		if flagsSet[SamplerEnabledFlag] {
			cfg.Sampler.Enabled = samplerEnabled
		}
		if flagsSet[SamplerURLFlag] {
			cfg.Sampler.URL = *samplerURL
		}
		if flagsSet[SamplerQueryFlag] {
			cfg.Sampler.Query = *samplerQuery
		}
		if flagsSet[SamplerTimeoutFlag] {
			cfg.Sampler.Timeout = *samplerTimeout
		}

		if flagsSet[pprofEnabledFlag] {
			cfg.Debug.Pprof.Enabled = enablePprof
		}
		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}
		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutEnabled
		}
		if flagsSet[ExporterStdoutIntervalFlag] {
			cfg.Exporter.Stdout.Interval = *stdoutInterval
		}
		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusEnabled
		}
		if flagsSet[ExporterPrometheusMetricsFlag] {
			cfg.Exporter.Prometheus.MetricsLevel = metricsLevel
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.ProcFS = strings.TrimSpace(c.Host.ProcFS)
	c.Host.MSR = strings.TrimSpace(c.Host.MSR)
	c.SmartGauge.Chip = strings.TrimSpace(c.SmartGauge.Chip)
	c.Sampler.URL = strings.TrimSpace(c.Sampler.URL)
	c.Sampler.Query = strings.TrimSpace(c.Sampler.Query)
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	for i := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(c.Web.ListenAddresses[i])
	}
	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string

	{ // log
		switch c.Log.Level {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
		switch c.Log.Format {
		case "text", "json":
		default:
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // host
		if !validationSkipped[SkipHostValidation] {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
			if err := canReadDir(c.Host.ProcFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid procfs path: %s: %s ", c.Host.ProcFS, err.Error()))
			}
		}
		if strings.Count(c.Host.MSR, "%d") != 1 {
			errs = append(errs, fmt.Sprintf("invalid msr path %q: must contain exactly one %%d", c.Host.MSR))
		}
	}
	{ // counters
		if c.Rapl.RefreshInterval < 0 {
			errs = append(errs, fmt.Sprintf("invalid rapl refresh interval: %s can't be negative", c.Rapl.RefreshInterval))
		}

		if ptr.Deref(c.Sampler.Enabled, false) {
			if u, err := url.Parse(c.Sampler.URL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Sprintf("invalid sampler url: %q", c.Sampler.URL))
			}
			if c.Sampler.Query == "" {
				errs = append(errs, fmt.Sprintf("%s not supplied but %s set to true", SamplerQueryFlag, SamplerEnabledFlag))
			}
			if c.Sampler.Timeout <= 0 {
				errs = append(errs, fmt.Sprintf("invalid sampler timeout: %s must be positive", c.Sampler.Timeout))
			}
		}

		if !ptr.Deref(c.Rapl.Enabled, false) &&
			!ptr.Deref(c.SmartGauge.Enabled, false) &&
			!ptr.Deref(c.Sampler.Enabled, false) {
			errs = append(errs, "at least one of rapl, smart-gauge or sampler must be enabled")
		}
	}
	{ // exporters
		if ptr.Deref(c.Exporter.Stdout.Enabled, false) && c.Exporter.Stdout.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid stdout interval: %s must be positive", c.Exporter.Stdout.Interval))
		}
	}
	{ // web config file
		if c.Web.Config != "" {
			if err := canReadFile(c.Web.Config); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
			}
		}
	}
	{ // web listen addresses
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "at least one web listen address must be specified")
		}
		for _, addr := range c.Web.ListenAddresses {
			if err := validateListenAddress(addr); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}
	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.ReadDir(1)
	return err
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Read(make([]byte, 8))
	return err
}

func validateListenAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(bytes)
}
