// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/gpufreq/internal/device"
	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

// PowerGate exposes the GPU power state to the DVFS controller
type PowerGate interface {
	// PoweredOn reports whether the shader cores are powered
	PoweredOn() bool
	// Access runs fn while holding the hardware access lock, serializing
	// clock programming with power transitions
	Access(fn func())
}

// Controller owns the DVFS state of one GPU: current and target level,
// bounds, active governor, QOS votes and residency metrics.
//
// Lock order: mu (DVFS lock) -> PowerGate access lock -> UID registry lock.
type Controller struct {
	logger *slog.Logger
	clock  clock.WithTicker
	tracer trace.Tracer

	table *Table
	gpu0  device.ClockDomain
	gpu1  device.ClockDomain
	gate  PowerGate

	mu          sync.Mutex
	level       int
	levelTarget int
	levelStart  int
	limits      limits
	governor    Governor
	qos         *qosVoter
	metrics     *ledger
	uids        *uidRegistry

	util atomic.Int32
	// work coalesces utilization reports into at most one pending evaluation
	work chan struct{}

	clockdown      *delayedTask
	clockdownDelay time.Duration

	refreshGroup singleflight.Group
	running      atomic.Bool
}

var (
	_ service.Runner       = (*Controller)(nil)
	_ service.Shutdowner   = (*Controller)(nil)
	_ service.ReadyChecker = (*Controller)(nil)
)

// NewController creates the DVFS controller for the GPU described by p. The
// starting level is the table row matching the boot clocks of p.
func NewController(table *Table, p *device.Platform, gate PowerGate, applyOpts ...OptionFn) (*Controller, error) {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	if opts.clockdownDelay <= 0 {
		return nil, fmt.Errorf("%w: clockdown hysteresis must be positive", ErrConfig)
	}
	if opts.jobSlots < 1 {
		return nil, fmt.Errorf("%w: at least one job slot is required", ErrConfig)
	}

	start, err := table.BootLevel(p.GPU0.BootRate(), p.GPU1.BootRate())
	if err != nil {
		return nil, err
	}
	gov, err := newGovernor(opts.governor, table, start)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		logger:         opts.logger.With("service", "dvfs"),
		clock:          opts.clock,
		tracer:         opts.tracer,
		table:          table,
		gpu0:           p.GPU0,
		gpu1:           p.GPU1,
		gate:           gate,
		level:          start,
		levelTarget:    start,
		levelStart:     start,
		limits:         newLimits(table.Len()),
		governor:       gov,
		qos:            newQOSVoter(p.QOS, opts.btsLevel),
		work:           make(chan struct{}, 1),
		clockdownDelay: opts.clockdownDelay,
	}
	c.uids = newUIDRegistry(opts.clock, table.Len(), start, opts.jobSlots, opts.maxUIDs)
	c.metrics = newLedger(opts.clock, c.uids, table.Len(), start, gate.PoweredOn())
	c.clockdown = newDelayedTask(opts.clock, c.clockDown)

	c.logger.Info("DVFS initialized",
		"levels", table.Len(), "start-level", start,
		"clk0", table.At(start).Clk0, "clk1", table.At(start).Clk1,
		"governor", gov.Name())
	return c, nil
}

func (c *Controller) Name() string {
	return "dvfs"
}

// Run processes utilization reports until ctx is cancelled
func (c *Controller) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.work:
			c.evaluate()
		}
	}
}

// IsReady reports whether the worker is processing utilization reports
func (c *Controller) IsReady() bool {
	return c.running.Load()
}

// Shutdown cancels a pending clock down
func (c *Controller) Shutdown() error {
	c.clockdown.cancel()
	return nil
}

// kick schedules an evaluation unless one is already pending
func (c *Controller) kick() {
	select {
	case c.work <- struct{}{}:
	default:
	}
}

// setLevelLocked moves the hardware to next. QOS votes are raised before a
// clock increase and relaxed after a clock decrease.
func (c *Controller) setLevelLocked(next int) {
	prev := c.level
	opp := c.table.At(next)

	if next < prev {
		c.qos.set(next, opp.QOS)
	}

	c.gate.Access(func() {
		c.metrics.update(prev, next, true)
		c.program(opp)
		c.level = next
	})

	if next > prev {
		c.qos.set(next, opp.QOS)
	}

	c.traceLevel("dvfs.set_level", prev, next)
	c.logger.Debug("level changed", "from", prev, "to", next, "clk0", opp.Clk0, "clk1", opp.Clk1)
}

func (c *Controller) program(opp OperatingPoint) {
	if err := c.gpu0.SetRate(opp.Clk0); err != nil {
		c.logger.Warn("failed to set clock rate", "domain", c.gpu0.Name(), "rate", opp.Clk0, "error", err)
	}
	if err := c.gpu1.SetRate(opp.Clk1); err != nil {
		c.logger.Warn("failed to set clock rate", "domain", c.gpu1.Name(), "rate", opp.Clk1, "error", err)
	}
}

func (c *Controller) traceLevel(name string, prev, next int) {
	opp := c.table.At(next)
	_, span := c.tracer.Start(context.Background(), name,
		trace.WithAttributes(
			attribute.Int("gpu.level.from", prev),
			attribute.Int("gpu.level.to", next),
			attribute.Int64("gpu.clk0.khz", int64(opp.Clk0)),
			attribute.Int64("gpu.clk1.khz", int64(opp.Clk1)),
		))
	span.End()
}

// reconcileLocked heals inverted bounds and pulls the target into the
// allowed window. The hardware follows on the next evaluation.
func (c *Controller) reconcileLocked() {
	if c.limits.heal() {
		c.logger.Warn("inconsistent scaling bounds, reset to full range",
			"scaling-max", c.limits.scalingMax, "scaling-min", c.limits.scalingMin)
	}
	c.levelTarget = c.limits.target(c.level, c.levelTarget)
	c.kick()
}

// PowerOnEvent records that the shader cores were powered on and cancels a
// pending clock down.
func (c *Controller) PowerOnEvent() {
	c.mu.Lock()
	c.metrics.update(c.level, c.level, true)
	c.mu.Unlock()

	c.clockdown.cancel()
}

// PowerOffEvent records that the shader cores were powered off and arms the
// clock down timer.
func (c *Controller) PowerOffEvent() {
	c.mu.Lock()
	c.metrics.update(c.level, c.level, false)
	c.mu.Unlock()

	c.clockdown.schedule(c.clockdownDelay)
}

// clockDown runs once the GPU stayed idle for the clock down delay. It
// withdraws the QOS votes and parks the GPU at the least performant
// allowed level.
func (c *Controller) clockDown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// powered back on before the timer could be cancelled
	if c.gate.PoweredOn() {
		return
	}

	c.levelTarget = c.limits.floor()
	c.qos.reset()
	if c.level == c.levelTarget {
		return
	}

	prev, next := c.level, c.levelTarget
	c.gate.Access(func() {
		c.program(c.table.At(next))
		c.level = next
	})
	c.traceLevel("dvfs.clock_down", prev, next)
	c.logger.Debug("clocked down while idle", "from", prev, "to", next)
}
