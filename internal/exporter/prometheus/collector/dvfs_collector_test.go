// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/sustainable-computing-io/gpufreq/config"
	"github.com/sustainable-computing-io/gpufreq/internal/device"
	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
	"github.com/sustainable-computing-io/gpufreq/internal/power"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	dvfs  *dvfs.Controller
	power *power.Controller
	clock *testingclock.FakeClock
}

// newFixture returns a two level GPU booted at 300 MHz, powered on at t0,
// with UID 1000 having run one second at level 1 and the clock 2s past t0.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	rows := []config.OPP{
		{Clk0: 600000, Clk1: 700000, UtilMin: 40, UtilMax: 100},
		{Clk0: 300000, Clk1: 400000, UtilMin: 0, UtilMax: 50},
	}
	p := device.NewFakePlatform([]uint32{600000, 300000}, []uint32{700000, 400000}, 300000, 400000, false)
	vf0, err := p.GPU0.RateVoltTable()
	require.NoError(t, err)
	vf1, err := p.GPU1.RateVoltTable()
	require.NoError(t, err)
	table, err := dvfs.NewTable(rows, vf0, vf1)
	require.NoError(t, err)

	clk := testingclock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	pc := power.NewController(p.Top, p.Cores, power.WithLogger(discardLogger()))
	require.NoError(t, pc.Init())

	ctrl, err := dvfs.NewController(table, p, pc, dvfs.WithLogger(discardLogger()), dvfs.WithClock(clk))
	require.NoError(t, err)
	pc.SetEventHandler(ctrl)
	pc.PowerOn()

	s, err := ctrl.ContextCreated(1000)
	require.NoError(t, err)
	require.NoError(t, ctrl.JobStarted(s, 0))
	clk.Step(time.Second)
	require.NoError(t, ctrl.JobEnded(s, 0))
	clk.Step(time.Second)

	return &fixture{dvfs: ctrl, power: pc, clock: clk}
}

func TestDVFSCollector(t *testing.T) {
	f := newFixture(t)
	c := NewDVFSCollector(f.dvfs, discardLogger(), config.MetricsLevelAll)

	expected := `
# HELP gpufreq_dvfs_level Current DVFS level, 0 is the most performant
# TYPE gpufreq_dvfs_level gauge
gpufreq_dvfs_level 1
# HELP gpufreq_dvfs_frequency_khz Clock rate of the current level
# TYPE gpufreq_dvfs_frequency_khz gauge
gpufreq_dvfs_frequency_khz{domain="gpu0"} 300000
gpufreq_dvfs_frequency_khz{domain="gpu1"} 400000
# HELP gpufreq_dvfs_limit_frequency_khz Frequency bounds applied to the governor
# TYPE gpufreq_dvfs_limit_frequency_khz gauge
gpufreq_dvfs_limit_frequency_khz{limit="scaling_max"} 600000
gpufreq_dvfs_limit_frequency_khz{limit="scaling_min"} 300000
gpufreq_dvfs_limit_frequency_khz{limit="thermal_max"} 600000
# HELP gpufreq_dvfs_level_seconds_total Time spent powered at each level in seconds
# TYPE gpufreq_dvfs_level_seconds_total counter
gpufreq_dvfs_level_seconds_total{frequency_khz="600000",level="0"} 0
gpufreq_dvfs_level_seconds_total{frequency_khz="300000",level="1"} 2
# HELP gpufreq_power_state_seconds_total Time spent in each power state in seconds
# TYPE gpufreq_power_state_seconds_total counter
gpufreq_power_state_seconds_total{state="off"} 0
gpufreq_power_state_seconds_total{state="on"} 2
# HELP gpufreq_uid_busy_seconds_total GPU time consumed by jobs of each UID at each level in seconds
# TYPE gpufreq_uid_busy_seconds_total counter
gpufreq_uid_busy_seconds_total{frequency_khz="600000",level="0",uid="1000"} 0
gpufreq_uid_busy_seconds_total{frequency_khz="300000",level="1",uid="1000"} 1
# HELP gpufreq_uid_contexts Open GPU contexts of each UID
# TYPE gpufreq_uid_contexts gauge
gpufreq_uid_contexts{uid="1000"} 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"gpufreq_dvfs_level",
		"gpufreq_dvfs_frequency_khz",
		"gpufreq_dvfs_limit_frequency_khz",
		"gpufreq_dvfs_level_seconds_total",
		"gpufreq_power_state_seconds_total",
		"gpufreq_uid_busy_seconds_total",
		"gpufreq_uid_contexts",
	)
	assert.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(c, "gpufreq_dvfs_governor_info"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "gpufreq_power_on"))
}

func TestDVFSCollectorMetricsLevel(t *testing.T) {
	f := newFixture(t)

	tt := []struct {
		name  string
		level config.Level
		dvfs  int
		power int
		uid   int
	}{
		{name: "dvfs only", level: config.MetricsLevelDVFS, dvfs: 1},
		{name: "power only", level: config.MetricsLevelPower, power: 1},
		{name: "uid only", level: config.MetricsLevelUID, uid: 1},
		{name: "all", level: config.MetricsLevelAll, dvfs: 1, power: 1, uid: 1},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			c := NewDVFSCollector(f.dvfs, discardLogger(), tc.level)
			assert.Equal(t, tc.dvfs, testutil.CollectAndCount(c, "gpufreq_dvfs_level"))
			assert.Equal(t, tc.power, testutil.CollectAndCount(c, "gpufreq_power_on"))
			assert.Equal(t, tc.uid, testutil.CollectAndCount(c, "gpufreq_uid_contexts"))
		})
	}
}

func TestPowerCollector(t *testing.T) {
	f := newFixture(t)
	f.power.PowerOff()
	f.power.Suspend()

	expected := `
# HELP gpufreq_power_controller_state Power controller state; 1 for the current state
# TYPE gpufreq_power_controller_state gauge
gpufreq_power_controller_state{state="off"} 0
gpufreq_power_controller_state{state="on"} 0
gpufreq_power_controller_state{state="suspended"} 1
# HELP gpufreq_power_transitions_total Power transitions that changed the hardware state
# TYPE gpufreq_power_transitions_total counter
gpufreq_power_transitions_total{transition="power_off"} 1
gpufreq_power_transitions_total{transition="power_on"} 1
gpufreq_power_transitions_total{transition="suspend"} 1
# HELP gpufreq_power_domain_errors_total Power domain requests that failed
# TYPE gpufreq_power_domain_errors_total counter
gpufreq_power_domain_errors_total 0
`
	err := testutil.CollectAndCompare(NewPowerCollector(f.power), strings.NewReader(expected))
	assert.NoError(t, err)
}
