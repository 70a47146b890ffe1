// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/sustainable-computing-io/raplmeter/config"
	"github.com/sustainable-computing-io/raplmeter/internal/counter"
	"github.com/sustainable-computing-io/raplmeter/internal/device"
	"github.com/sustainable-computing-io/raplmeter/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/raplmeter/internal/exporter/prometheus/collector"
	"github.com/sustainable-computing-io/raplmeter/internal/exporter/stdout"
	"github.com/sustainable-computing-io/raplmeter/internal/logger"
	"github.com/sustainable-computing-io/raplmeter/internal/server"
	"github.com/sustainable-computing-io/raplmeter/internal/service"
	"github.com/sustainable-computing-io/raplmeter/internal/topology"
	"github.com/sustainable-computing-io/raplmeter/internal/version"
	"k8s.io/utils/ptr"
)

func main() {
	cfg, err := parseArgsAndConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logVersionInfo(log)
	printConfigInfo(log, cfg)

	if err := run(log, cfg); err != nil {
		log.Error("raplmeter terminated with an error", "error", err)
		os.Exit(1)
	}
	log.Info("Graceful shutdown completed")
}

func run(log *slog.Logger, cfg *config.Config) error {
	var providers []topology.Provider
	if p, err := topology.NewProcFSProvider(cfg.Host.ProcFS); err != nil {
		log.Warn("procfs topology unavailable, using system cpu info", "procfs", cfg.Host.ProcFS, "error", err)
	} else {
		providers = append(providers, p)
	}
	topo := topology.FirstOf(append(providers, topology.NewSystemProvider())...)

	jc, rapl, err := selectCounter(log, cfg, topo)
	if err != nil {
		return err
	}

	services := createServices(log, cfg, jc, rapl, topo)

	// the counter is already initialized; it goes first so it is released last
	all := append([]service.Service{jc}, services...)
	if err := service.Init(log, services); err != nil {
		service.Shutdown(log, all)
		return err
	}

	log.Info("Starting raplmeter", "counter", jc.Name())
	runErr := service.Run(context.Background(), log, services)
	service.Shutdown(log, all)
	return runErr
}

// selectCounter returns the first enabled counter that initializes. rapl is
// non nil only when the RAPL engine is the one selected.
func selectCounter(log *slog.Logger, cfg *config.Config, topo topology.Provider) (counter.JoulesCounter, *device.RAPLCounter, error) {
	var candidates []counter.JoulesCounter

	var rapl *device.RAPLCounter
	if ptr.Deref(cfg.Rapl.Enabled, false) {
		rapl = device.NewRAPLCounter(topo,
			device.NewMSROpener(afero.NewOsFs(), cfg.Host.MSR),
			device.WithRAPLLogger(log),
			device.WithRefreshInterval(cfg.Rapl.RefreshInterval),
		)
		candidates = append(candidates, rapl)
	}

	if ptr.Deref(cfg.SmartGauge.Enabled, false) {
		candidates = append(candidates, counter.NewSmartGauge(
			counter.NewHwmonMeter(cfg.Host.SysFS, cfg.SmartGauge.Chip),
			counter.WithLogger(log),
		))
	}

	if ptr.Deref(cfg.Sampler.Enabled, false) {
		reader, err := counter.NewPrometheusSumReader(cfg.Sampler.URL, cfg.Sampler.Query, log)
		if err != nil {
			log.Warn("Sampler unavailable", "error", err)
		} else {
			candidates = append(candidates, counter.NewSampler(reader,
				counter.WithLogger(log),
				counter.WithTimeout(cfg.Sampler.Timeout),
			))
		}
	}

	jc, err := counter.Select(log, candidates...)
	if err != nil {
		return nil, nil, err
	}
	if jc != counter.JoulesCounter(rapl) {
		rapl = nil
	}
	return jc, rapl, nil
}

func createServices(log *slog.Logger, cfg *config.Config, jc counter.JoulesCounter,
	rapl *device.RAPLCounter, topo topology.Provider,
) []service.Service {
	log.Debug("Creating all services")

	apiServer := server.NewAPIServer(
		server.WithLogger(log),
		server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
	)

	services := []service.Service{
		apiServer,
		server.NewProbe(apiServer, jc, log),
	}

	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		services = append(services, prometheus.NewExporter(apiServer,
			prometheus.WithLogger(log),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
			prometheus.WithCollectors(collectorsFor(cfg.Exporter.Prometheus.MetricsLevel, jc, rapl, topo)),
		))
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		opts := []stdout.OptionFn{
			stdout.WithLogger(log),
			stdout.WithInterval(cfg.Exporter.Stdout.Interval),
		}
		if rapl != nil {
			opts = append(opts, stdout.WithComponents(rapl))
		}
		services = append(services, stdout.NewExporter(jc, opts...))
	}

	if ptr.Deref(cfg.Debug.Pprof.Enabled, false) {
		services = append(services, server.NewPprof(apiServer))
	}

	services = append(services, service.NewSignalHandler(log, syscall.SIGINT, syscall.SIGTERM))
	return services
}

func collectorsFor(level config.Level, jc counter.JoulesCounter, rapl *device.RAPLCounter, topo topology.Provider) map[string]prom.Collector {
	var opts []prometheus.OptionFn
	if level.IsCPUEnabled() && rapl != nil {
		opts = append(opts, prometheus.WithRAPL(rapl))
	}
	if level.IsInfoEnabled() {
		opts = append(opts, prometheus.WithTopology(topo))
	}

	var source collector.JoulesSource
	if level.IsNodeEnabled() {
		source = jc
	}
	return prometheus.CreateCollectors(source, opts...)
}

func logVersionInfo(log *slog.Logger) {
	v := version.Info()
	log.Info("raplmeter version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, error) {
	app := kingpin.New("raplmeter", "Wraparound safe machine energy counter exported to Prometheus.")
	app.Version(version.Info().String())

	configFiles := app.Flag("config.file", "Path to YAML configuration file; repeat to layer several").Strings()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := (&config.Builder{}).MergeFiles(*configFiles...).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// flags override the files and validate the result
	if err := updateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printConfigInfo(log *slog.Logger, cfg *config.Config) {
	if !log.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(os.Stderr, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}
