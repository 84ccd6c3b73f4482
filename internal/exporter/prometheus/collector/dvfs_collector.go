// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/gpufreq/config"
	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
)

// DVFSDataProvider is the part of the DVFS controller the collector reads
type DVFSDataProvider interface {
	Snapshot() *dvfs.Snapshot
	Table() *dvfs.Table
}

// DVFSCollector exports the DVFS state and residency metrics from a single
// controller snapshot per scrape
type DVFSCollector struct {
	dvfs         DVFSDataProvider
	logger       *slog.Logger
	metricsLevel config.Level

	level        *prom.Desc
	targetLevel  *prom.Desc
	frequency    *prom.Desc
	limit        *prom.Desc
	utilization  *prom.Desc
	governor     *prom.Desc
	levelSeconds *prom.Desc
	levelEntries *prom.Desc

	powered      *prom.Desc
	powerSeconds *prom.Desc
	powerEntries *prom.Desc

	uidBusy     *prom.Desc
	uidContexts *prom.Desc
}

func newDesc(subsystem, name, help string, labels ...string) *prom.Desc {
	return prom.NewDesc(prom.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

func NewDVFSCollector(d DVFSDataProvider, logger *slog.Logger, metricsLevel config.Level) *DVFSCollector {
	const (
		level = "level"
		freq  = "frequency_khz"
	)

	return &DVFSCollector{
		dvfs:         d,
		logger:       logger.With("collector", "dvfs"),
		metricsLevel: metricsLevel,

		level:       newDesc("dvfs", "level", "Current DVFS level, 0 is the most performant"),
		targetLevel: newDesc("dvfs", "target_level", "DVFS level the worker is converging to"),
		frequency:   newDesc("dvfs", "frequency_khz", "Clock rate of the current level", "domain"),
		limit:       newDesc("dvfs", "limit_frequency_khz", "Frequency bounds applied to the governor", "limit"),
		utilization: newDesc("dvfs", "utilization_ratio", "Last reported GPU utilization (value between 0.0 and 1.0)"),
		governor:    newDesc("dvfs", "governor_info", "A metric with a constant '1' value labeled with the active governor", "governor"),
		levelSeconds: newDesc("dvfs", "level_seconds_total",
			"Time spent powered at each level in seconds", level, freq),
		levelEntries: newDesc("dvfs", "level_entries_total",
			"Number of times each level was entered", level, freq),

		powered:      newDesc("power", "on", "1 when the shader cores are powered"),
		powerSeconds: newDesc("power", "state_seconds_total", "Time spent in each power state in seconds", "state"),
		powerEntries: newDesc("power", "state_entries_total", "Number of times each power state was entered", "state"),

		uidBusy: newDesc("uid", "busy_seconds_total",
			"GPU time consumed by jobs of each UID at each level in seconds", "uid", level, freq),
		uidContexts: newDesc("uid", "contexts", "Open GPU contexts of each UID", "uid"),
	}
}

func (c *DVFSCollector) Describe(ch chan<- *prom.Desc) {
	if c.metricsLevel.IsDVFSEnabled() {
		ch <- c.level
		ch <- c.targetLevel
		ch <- c.frequency
		ch <- c.limit
		ch <- c.utilization
		ch <- c.governor
		ch <- c.levelSeconds
		ch <- c.levelEntries
	}
	if c.metricsLevel.IsPowerEnabled() {
		ch <- c.powered
		ch <- c.powerSeconds
		ch <- c.powerEntries
	}
	if c.metricsLevel.IsUIDEnabled() {
		ch <- c.uidBusy
		ch <- c.uidContexts
	}
}

func (c *DVFSCollector) Collect(ch chan<- prom.Metric) {
	s := c.dvfs.Snapshot()
	table := c.dvfs.Table()

	if c.metricsLevel.IsDVFSEnabled() {
		c.collectDVFS(ch, s, table)
	}
	if c.metricsLevel.IsPowerEnabled() {
		c.collectPower(ch, s)
	}
	if c.metricsLevel.IsUIDEnabled() {
		c.collectUIDs(ch, s, table)
	}
}

func (c *DVFSCollector) collectDVFS(ch chan<- prom.Metric, s *dvfs.Snapshot, table *dvfs.Table) {
	cur := table.At(s.Level)
	freqKHz := func(level int) float64 { return float64(table.At(level).Clk0) }

	ch <- prom.MustNewConstMetric(c.level, prom.GaugeValue, float64(s.Level))
	ch <- prom.MustNewConstMetric(c.targetLevel, prom.GaugeValue, float64(s.Target))
	ch <- prom.MustNewConstMetric(c.frequency, prom.GaugeValue, float64(cur.Clk0), "gpu0")
	ch <- prom.MustNewConstMetric(c.frequency, prom.GaugeValue, float64(cur.Clk1), "gpu1")
	ch <- prom.MustNewConstMetric(c.limit, prom.GaugeValue, freqKHz(s.ScalingMax), "scaling_max")
	ch <- prom.MustNewConstMetric(c.limit, prom.GaugeValue, freqKHz(s.ScalingMin), "scaling_min")
	ch <- prom.MustNewConstMetric(c.limit, prom.GaugeValue, freqKHz(s.ThermalMax), "thermal_max")
	ch <- prom.MustNewConstMetric(c.utilization, prom.GaugeValue, float64(s.Utilization)/100)
	ch <- prom.MustNewConstMetric(c.governor, prom.GaugeValue, 1, s.Governor)

	for i, r := range s.Ledger.Levels {
		level, freq := strconv.Itoa(i), strconv.FormatUint(uint64(table.At(i).Clk0), 10)
		ch <- prom.MustNewConstMetric(c.levelSeconds, prom.CounterValue, r.Time.Seconds(), level, freq)
		ch <- prom.MustNewConstMetric(c.levelEntries, prom.CounterValue, float64(r.Entries), level, freq)
	}
}

func (c *DVFSCollector) collectPower(ch chan<- prom.Metric, s *dvfs.Snapshot) {
	on := 0.0
	if s.Powered {
		on = 1
	}
	ch <- prom.MustNewConstMetric(c.powered, prom.GaugeValue, on)

	l := s.Ledger
	ch <- prom.MustNewConstMetric(c.powerSeconds, prom.CounterValue, l.PowerOn.Time.Seconds(), "on")
	ch <- prom.MustNewConstMetric(c.powerSeconds, prom.CounterValue, l.PowerOff.Time.Seconds(), "off")
	ch <- prom.MustNewConstMetric(c.powerEntries, prom.CounterValue, float64(l.PowerOn.Entries), "on")
	ch <- prom.MustNewConstMetric(c.powerEntries, prom.CounterValue, float64(l.PowerOff.Entries), "off")
}

func (c *DVFSCollector) collectUIDs(ch chan<- prom.Metric, s *dvfs.Snapshot, table *dvfs.Table) {
	for _, u := range s.UIDs {
		uid := strconv.FormatUint(uint64(u.UID), 10)
		ch <- prom.MustNewConstMetric(c.uidContexts, prom.GaugeValue, float64(u.Contexts), uid)

		for i, busy := range u.Busy {
			if !table.Valid(i) {
				c.logger.Warn("UID residency longer than the table", "uid", uid, "levels", len(u.Busy))
				break
			}
			ch <- prom.MustNewConstMetric(c.uidBusy, prom.CounterValue, busy.Seconds(),
				uid, strconv.Itoa(i), strconv.FormatUint(uint64(table.At(i).Clk0), 10))
		}
	}
}
