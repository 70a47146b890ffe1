// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/sustainable-computing-io/raplmeter/internal/device"
	"github.com/sustainable-computing-io/raplmeter/internal/service"
	"k8s.io/utils/clock"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
)

// JoulesSource is the selected whole machine energy counter
type JoulesSource interface {
	Name() string
	Joules() (device.Joules, error)
}

// ComponentsSource reports per CPU and per domain energy
type ComponentsSource interface {
	CPUIDs() []int
	Components(cpuID int) (device.Components, error)
}

// Exporter periodically writes energy readings to stdout
type Exporter struct {
	logger     *slog.Logger
	source     JoulesSource
	components ComponentsSource
	out        io.WriteCloser
	clock      clock.WithTicker
	ticker     clock.Ticker
	interval   time.Duration
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger     *slog.Logger
	out        io.WriteCloser
	interval   time.Duration
	clock      clock.WithTicker
	components ComponentsSource
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		out:      os.Stdout,
		interval: 2 * time.Second,
		clock:    clock.RealClock{},
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = interval
	}
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithComponents adds a per CPU table to every report
func WithComponents(c ComponentsSource) OptionFn {
	return func(o *Opts) {
		o.components = c
	}
}

func NewExporter(source JoulesSource, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:     opts.logger.With("service", "stdout"),
		source:     source,
		components: opts.components,
		out:        opts.out,
		clock:      opts.clock,
		interval:   opts.interval,
	}
}

func (e *Exporter) Init() error {
	e.ticker = e.clock.NewTicker(e.interval)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	defer e.ticker.Stop()
	for {
		select {
		case <-e.ticker.C():
			e.report()
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			return nil
		}
	}
}

func (e *Exporter) report() {
	if e.components != nil {
		rows := [][]string{}
		for _, id := range e.components.CPUIDs() {
			c, err := e.components.Components(id)
			if err != nil {
				e.logger.Error("Failed to read cpu energy", "cpu", id, "error", err)
				return
			}
			rows = append(rows, componentsRow(strconv.Itoa(id), c))
		}
		writeTable(e.out, []string{"CPU", "Package", "Cores", "Graphic", "DRAM"}, rows)
	}

	j, err := e.source.Joules()
	if err != nil {
		e.logger.Error("Failed to read energy", "source", e.source.Name(), "error", err)
		return
	}
	writeTable(e.out, []string{"Source", "Absolute(J)"}, [][]string{{e.source.Name(), j.String()}})
}

func componentsRow(cpu string, c device.Components) []string {
	return []string{cpu, c.CPU.String(), c.Cores.String(), c.Graphic.String(), c.DRAM.String()}
}

func writeTable(out io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header(header)
	_ = table.Bulk(rows)
	_ = table.Render()
}

func (e *Exporter) Shutdown() error {
	return e.out.Close()
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "stdout"
}
