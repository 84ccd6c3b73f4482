// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package simulator plays the core GPU driver against the fake platform: it
// alternates busy and idle phases, powering the GPU accordingly, dispatching
// jobs for a set of UIDs and reporting the resulting utilization.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

// Driver is the DVFS entry points the core driver calls
type Driver interface {
	ReportUtilization(util int)
	ContextCreated(uid uint32) (*dvfs.UIDStats, error)
	ContextDestroyed(s *dvfs.UIDStats)
	JobStarted(s *dvfs.UIDStats, slot int) error
	JobEnded(s *dvfs.UIDStats, slot int) error
}

// Power is the power callbacks the core driver calls
type Power interface {
	PowerOn() bool
	PowerOff()
}

type Opts struct {
	logger   *slog.Logger
	clock    clock.WithTicker
	interval time.Duration
	uids     []uint32
	slots    int
	seed     uint64
}

func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		clock:    clock.RealClock{},
		interval: 16 * time.Millisecond,
		uids:     []uint32{10001},
		slots:    3,
		seed:     uint64(time.Now().UnixNano()),
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithInterval sets the utilization sampling period
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

func WithUIDs(uids []uint32) OptionFn {
	return func(o *Opts) {
		o.uids = uids
	}
}

func WithJobSlots(n int) OptionFn {
	return func(o *Opts) {
		o.slots = n
	}
}

func WithSeed(seed uint64) OptionFn {
	return func(o *Opts) {
		o.seed = seed
	}
}

type phase int

const (
	phaseIdle phase = iota
	phaseBusy
)

// Simulator is a workload generator
type Simulator struct {
	logger   *slog.Logger
	clock    clock.WithTicker
	interval time.Duration
	rand     *rand.Rand
	driver   Driver
	power    Power
	uids     []uint32

	// mu serializes ticks with Shutdown
	mu       sync.Mutex
	contexts []*dvfs.UIDStats
	slots    []*dvfs.UIDStats // running job per slot
	powered  bool
	phase    phase
	left     int // ticks left in the phase
	load     int // busy phase intensity in percent
}

var (
	_ service.Initializer = (*Simulator)(nil)
	_ service.Runner      = (*Simulator)(nil)
	_ service.Shutdowner  = (*Simulator)(nil)
)

func New(d Driver, p Power, applyOpts ...OptionFn) *Simulator {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Simulator{
		logger:   opts.logger.With("service", "simulator"),
		clock:    opts.clock,
		interval: opts.interval,
		rand:     rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15)),
		driver:   d,
		power:    p,
		uids:     opts.uids,
		slots:    make([]*dvfs.UIDStats, opts.slots),
	}
}

func (s *Simulator) Name() string {
	return "simulator"
}

// Init opens one context per UID
func (s *Simulator) Init() error {
	if s.interval <= 0 {
		return fmt.Errorf("simulator interval must be positive, got %s", s.interval)
	}
	if len(s.uids) == 0 || len(s.slots) == 0 {
		return fmt.Errorf("simulator needs at least one UID and one job slot")
	}

	for _, uid := range s.uids {
		c, err := s.driver.ContextCreated(uid)
		if err != nil {
			return fmt.Errorf("failed to create context for uid %d: %w", uid, err)
		}
		s.contexts = append(s.contexts, c)
	}
	s.logger.Info("Simulating GPU workload", "uids", s.uids, "slots", len(s.slots), "interval", s.interval)
	return nil
}

func (s *Simulator) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.tick()
		}
	}
}

// Shutdown retires running jobs, closes the contexts and powers the GPU off
func (s *Simulator) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retireAll()
	for _, c := range s.contexts {
		s.driver.ContextDestroyed(c)
	}
	s.contexts = nil
	if s.powered {
		s.power.PowerOff()
		s.powered = false
	}
	return nil
}

func (s *Simulator) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contexts == nil {
		return
	}
	if s.left <= 0 {
		s.nextPhase()
	}
	s.left--

	if s.phase == phaseIdle {
		s.retireAll()
		if s.powered {
			s.driver.ReportUtilization(0)
			s.power.PowerOff()
			s.powered = false
		}
		return
	}

	if !s.powered {
		if lost := s.power.PowerOn(); lost {
			s.logger.Debug("GPU state lost since last power on")
		}
		s.powered = true
	}

	busy := 0
	for slot, running := range s.slots {
		if running != nil && s.rand.IntN(100) < 30 {
			s.end(slot)
		}
		if s.slots[slot] == nil && s.rand.IntN(100) < s.load {
			s.start(slot, s.contexts[s.rand.IntN(len(s.contexts))])
		}
		if s.slots[slot] != nil {
			busy++
		}
	}

	util := busy*100/len(s.slots) + s.rand.IntN(11) - 5
	s.driver.ReportUtilization(min(max(util, 0), 100))
}

// nextPhase alternates busy phases of 10 to 100 ticks with idle phases of 5
// to 50 ticks
func (s *Simulator) nextPhase() {
	if s.phase == phaseBusy {
		s.phase = phaseIdle
		s.left = 5 + s.rand.IntN(46)
		return
	}
	s.phase = phaseBusy
	s.left = 10 + s.rand.IntN(91)
	s.load = 20 + s.rand.IntN(81)
	s.logger.Debug("busy phase", "ticks", s.left, "load", s.load)
}

func (s *Simulator) start(slot int, c *dvfs.UIDStats) {
	if err := s.driver.JobStarted(c, slot); err != nil {
		s.logger.Warn("job start rejected", "uid", c.UID(), "slot", slot, "error", err)
		return
	}
	s.slots[slot] = c
}

func (s *Simulator) end(slot int) {
	c := s.slots[slot]
	if err := s.driver.JobEnded(c, slot); err != nil {
		s.logger.Warn("job end rejected", "uid", c.UID(), "slot", slot, "error", err)
	}
	s.slots[slot] = nil
}

func (s *Simulator) retireAll() {
	for slot, running := range s.slots {
		if running != nil {
			s.end(slot)
		}
	}
}
