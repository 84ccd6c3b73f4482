// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package power sequences the GPU power domains in response to the core
// driver's power callbacks and notifies DVFS of actual transitions.
package power

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sustainable-computing-io/gpufreq/internal/device"
	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

// State is the power state of the GPU
type State int32

const (
	StateOff State = iota
	StateOn
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// EventHandler is notified after the shader cores actually changed power
// state. It is called with the controller's state lock held and must not
// call back into the controller's transition methods.
type EventHandler interface {
	PowerOnEvent()
	PowerOffEvent()
}

type nopHandler struct{}

func (nopHandler) PowerOnEvent()  {}
func (nopHandler) PowerOffEvent() {}

// Stats counts power transitions since start
type Stats struct {
	State        State
	PowerOns     uint64
	PowerOffs    uint64
	Suspends     uint64
	DomainErrors uint64
}

// Controller drives one GPU through OFF, ON and SUSPENDED. With a single
// domain the whole GPU is switched; with split domains the top-level domain
// stays on while idle and only the shader cores are cycled.
//
// Lock order: mu -> access. The access lock is also taken by DVFS while
// programming clocks.
type Controller struct {
	logger *slog.Logger
	tracer trace.Tracer

	top   device.PowerDomain
	cores device.PowerDomain // nil with a single domain

	retainTop     bool
	resumePowered bool

	mu        sync.Mutex
	access    sync.Mutex
	state     atomic.Int32
	stateLost bool
	events    EventHandler

	initialized  atomic.Bool
	powerOns     atomic.Uint64
	powerOffs    atomic.Uint64
	suspends     atomic.Uint64
	domainErrors atomic.Uint64
}

var (
	_ service.Initializer  = (*Controller)(nil)
	_ service.ReadyChecker = (*Controller)(nil)
)

// NewController returns a controller for top and, when not nil, a separate
// shader core domain
func NewController(top, cores device.PowerDomain, applyOpts ...OptionFn) *Controller {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Controller{
		logger:        opts.logger.With("service", "power"),
		tracer:        opts.tracer,
		top:           top,
		cores:         cores,
		retainTop:     opts.retainTop,
		resumePowered: opts.resumePowered,
		events:        nopHandler{},
	}
}

// SetEventHandler registers the receiver of power events
func (c *Controller) SetEventHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = h
}

func (c *Controller) Name() string {
	return "power"
}

// Init seeds the state from the hardware
func (c *Controller) Init() error {
	on, err := c.shaders().IsOn()
	if err != nil {
		c.logger.Warn("cannot read initial power state, assuming off", "domain", c.shaders().Name(), "error", err)
		c.initialized.Store(true)
		return nil
	}
	if on {
		c.state.Store(int32(StateOn))
	}
	c.initialized.Store(true)
	c.logger.Info("power controller initialized", "split", c.cores != nil, "state", c.State())
	return nil
}

func (c *Controller) split() bool {
	return c.cores != nil
}

// shaders is the domain whose state defines "powered"
func (c *Controller) shaders() device.PowerDomain {
	if c.split() {
		return c.cores
	}
	return c.top
}

// IsReady reports whether Init has run
func (c *Controller) IsReady() bool {
	return c.initialized.Load()
}

// State returns the current state machine state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// PoweredOn reports whether the shader cores are powered. The hardware is
// queried under the access lock; the tracked state is used if that fails.
func (c *Controller) PoweredOn() bool {
	var (
		on  bool
		err error
	)
	c.Access(func() {
		on, err = c.shaders().IsOn()
	})
	if err != nil {
		c.logger.Warn("failed to read power state", "domain", c.shaders().Name(), "error", err)
		return c.State() == StateOn
	}
	return on
}

// Access runs fn with the hardware access lock held
func (c *Controller) Access(fn func()) {
	c.access.Lock()
	defer c.access.Unlock()
	fn()
}

// PowerOn powers the GPU for work and reports whether GPU state was lost
// since the previous power on, i.e. a suspend happened in between.
func (c *Controller) PowerOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.powerOnLocked()
	lost := c.stateLost
	c.stateLost = false
	return lost
}

func (c *Controller) powerOnLocked() {
	var changed bool
	c.Access(func() {
		if c.split() {
			c.switchDomain(c.top, true)
		}
		changed = c.switchDomain(c.shaders(), true)
	})
	c.state.Store(int32(StateOn))

	if changed {
		c.powerOns.Add(1)
		c.trace("gpu.power_on")
		c.events.PowerOnEvent()
	}
}

// PowerOff releases the shader cores after the core driver went idle
func (c *Controller) PowerOff() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateSuspended {
		return
	}

	var changed bool
	c.Access(func() {
		changed = c.switchDomain(c.shaders(), false)
	})
	c.state.Store(int32(StateOff))

	if changed {
		c.powerOffs.Add(1)
		c.trace("gpu.power_off")
		c.events.PowerOffEvent()
	}
}

// Suspend releases every domain (the top-level one is kept when configured
// so) and marks GPU state as lost.
func (c *Controller) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed bool
	c.Access(func() {
		changed = c.switchDomain(c.shaders(), false)
		if c.split() && !c.retainTop {
			c.switchDomain(c.top, false)
		}
	})
	c.state.Store(int32(StateSuspended))
	c.stateLost = true
	c.suspends.Add(1)

	c.trace("gpu.suspend")
	if changed {
		c.powerOffs.Add(1)
		c.events.PowerOffEvent()
	}
}

// Resume leaves SUSPENDED, either powered off or, when configured, powered on
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateSuspended {
		return
	}

	if c.resumePowered {
		c.powerOnLocked()
		return
	}

	if c.split() {
		c.Access(func() {
			c.switchDomain(c.top, true)
		})
	}
	c.state.Store(int32(StateOff))
	c.trace("gpu.resume")
}

// switchDomain requests a domain transition and reports whether the domain
// changed state. Failures are logged and the sequence carries on.
func (c *Controller) switchDomain(d device.PowerDomain, on bool) bool {
	var (
		changed bool
		err     error
	)
	if on {
		changed, err = d.PowerOn()
	} else {
		changed, err = d.PowerOff()
	}
	if err != nil {
		c.domainErrors.Add(1)
		c.logger.Warn("power domain transition failed", "domain", d.Name(), "on", on, "error", err)
		return false
	}
	return changed
}

func (c *Controller) trace(name string) {
	_, span := c.tracer.Start(context.Background(), name,
		trace.WithAttributes(
			attribute.String("gpu.power.domain", c.shaders().Name()),
			attribute.Bool("gpu.power.split", c.split()),
			attribute.String("gpu.power.state", c.State().String()),
		))
	span.End()
}

// Stats returns the transition counters
func (c *Controller) Stats() Stats {
	return Stats{
		State:        c.State(),
		PowerOns:     c.powerOns.Load(),
		PowerOffs:    c.powerOffs.Load(),
		Suspends:     c.suspends.Load(),
		DomainErrors: c.domainErrors.Load(),
	}
}
