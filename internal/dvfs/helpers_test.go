// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/sustainable-computing-io/gpufreq/config"
	"github.com/sustainable-computing-io/gpufreq/internal/device"
)

// threeLevels is a small table: 900, 600 and 300 MHz
func threeLevels() []config.OPP {
	return []config.OPP{
		{Clk0: 900000, Clk1: 1000000, UtilMin: 70, UtilMax: 100, Hysteresis: 1, QOS: config.QOS{MIFMin: 3000, INTMin: 30}},
		{Clk0: 600000, Clk1: 700000, UtilMin: 40, UtilMax: 80, Hysteresis: 2, QOS: config.QOS{MIFMin: 2000, INTMin: 20, CPU2Max: 1500000}},
		{Clk0: 300000, Clk1: 400000, UtilMin: 0, UtilMax: 50, Hysteresis: 0, QOS: config.QOS{MIFMin: 1000, INTMin: 10, CPU2Max: 1000000}},
	}
}

func rates(rows []config.OPP) (r0, r1 []uint32) {
	for _, row := range rows {
		r0 = append(r0, row.Clk0)
		r1 = append(r1, row.Clk1)
	}
	return r0, r1
}

// newTestPlatform returns a fake platform booting at rows[boot]
func newTestPlatform(rows []config.OPP, boot int) *device.Platform {
	r0, r1 := rates(rows)
	return device.NewFakePlatform(r0, r1, rows[boot].Clk0, rows[boot].Clk1, false)
}

func newTestTable(t *testing.T, rows []config.OPP, p *device.Platform) *Table {
	t.Helper()
	vf0, err := p.GPU0.RateVoltTable()
	require.NoError(t, err)
	vf1, err := p.GPU1.RateVoltTable()
	require.NoError(t, err)

	tbl, err := NewTable(rows, vf0, vf1)
	require.NoError(t, err)
	return tbl
}

type fakeGate struct {
	mu sync.Mutex
	on atomic.Bool
}

func (g *fakeGate) PoweredOn() bool {
	return g.on.Load()
}

func (g *fakeGate) Access(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	ctrl  *Controller
	gate  *fakeGate
	plat  *device.Platform
	qos   *device.FakeQOS
	clock *testingclock.FakeClock
}

// newTestController boots the three level table at level 1 with the GPU on
func newTestController(t *testing.T, opts ...OptionFn) *testEnv {
	t.Helper()
	rows := threeLevels()
	plat := newTestPlatform(rows, 1)
	tbl := newTestTable(t, rows, plat)

	gate := &fakeGate{}
	gate.on.Store(true)
	clk := testingclock.NewFakeClock(time.Unix(1_700_000_000, 0))

	all := append([]OptionFn{WithLogger(discardLogger()), WithClock(clk)}, opts...)
	c, err := NewController(tbl, plat, gate, all...)
	require.NoError(t, err)

	return &testEnv{ctrl: c, gate: gate, plat: plat, qos: plat.QOS.(*device.FakeQOS), clock: clk}
}

// step reports util and runs one evaluation synchronously
func (e *testEnv) step(util int) {
	e.ctrl.ReportUtilization(util)
	e.ctrl.evaluate()
}

func (e *testEnv) forceLevel(level int) {
	e.ctrl.mu.Lock()
	defer e.ctrl.mu.Unlock()
	e.ctrl.levelTarget = level
	e.ctrl.setLevelLocked(level)
}
