// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package stdout periodically prints the DVFS residency tables
package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

// DataProvider is the part of the DVFS controller the exporter reads
type DataProvider interface {
	Snapshot() *dvfs.Snapshot
	Table() *dvfs.Table
}

type Exporter struct {
	logger   *slog.Logger
	dvfs     DataProvider
	out      io.Writer
	clock    clock.WithTicker
	interval time.Duration
}

var (
	_ service.Initializer = (*Exporter)(nil)
	_ service.Runner      = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.Writer
	clock    clock.WithTicker
	interval time.Duration
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		out:      os.Stdout,
		clock:    clock.RealClock{},
		interval: 10 * time.Second,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.Writer) OptionFn {
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

func NewExporter(d DataProvider, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:   opts.logger.With("service", "stdout"),
		dvfs:     d,
		out:      opts.out,
		clock:    opts.clock,
		interval: opts.interval,
	}
}

func (e *Exporter) Name() string {
	return "stdout"
}

func (e *Exporter) Init() error {
	if e.interval <= 0 {
		return fmt.Errorf("stdout exporter interval must be positive, got %s", e.interval)
	}
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			write(e.out, e.dvfs.Table(), e.dvfs.Snapshot())
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			return nil
		}
	}
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header(header)
	return table
}

func write(out io.Writer, t *dvfs.Table, s *dvfs.Snapshot) {
	writeLevels(out, t, s)
	writePower(out, s)
	if len(s.UIDs) > 0 {
		writeUIDs(out, t, s)
	}
}

func writeLevels(out io.Writer, t *dvfs.Table, s *dvfs.Snapshot) {
	rows := make([][]string, 0, len(s.Ledger.Levels))
	for i, r := range s.Ledger.Levels {
		mark := ""
		if i == s.Level {
			mark = "*"
		}
		rows = append(rows, []string{
			mark + strconv.Itoa(i),
			strconv.FormatUint(uint64(t.At(i).Clk0), 10),
			r.Time.Round(time.Millisecond).String(),
			strconv.FormatUint(r.Entries, 10),
		})
	}

	table := newTable(out, []string{"Level", "Freq(kHz)", "Time", "Entries"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func writePower(out io.Writer, s *dvfs.Snapshot) {
	l := s.Ledger
	table := newTable(out, []string{"Power", "Time", "Entries"})
	_ = table.Bulk([][]string{
		{"on", l.PowerOn.Time.Round(time.Millisecond).String(), strconv.FormatUint(l.PowerOn.Entries, 10)},
		{"off", l.PowerOff.Time.Round(time.Millisecond).String(), strconv.FormatUint(l.PowerOff.Entries, 10)},
	})
	_ = table.Render()
}

func writeUIDs(out io.Writer, t *dvfs.Table, s *dvfs.Snapshot) {
	header := []string{"UID", "Contexts"}
	for i := range t.Len() {
		header = append(header, strconv.FormatUint(uint64(t.At(i).Clk0), 10))
	}

	rows := make([][]string, 0, len(s.UIDs))
	for _, u := range s.UIDs {
		row := []string{strconv.FormatUint(uint64(u.UID), 10), strconv.Itoa(u.Contexts)}
		for _, busy := range u.Busy {
			row = append(row, busy.Round(time.Millisecond).String())
		}
		rows = append(rows, row)
	}

	table := newTable(out, header)
	_ = table.Bulk(rows)
	_ = table.Render()
}
