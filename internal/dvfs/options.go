// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"
)

const tracerName = "github.com/sustainable-computing-io/gpufreq/internal/dvfs"

type Opts struct {
	logger         *slog.Logger
	clock          clock.WithTicker
	tracer         trace.Tracer
	governor       string
	clockdownDelay time.Duration
	jobSlots       int
	maxUIDs        int
	btsLevel       int
}

// DefaultOpts returns the options used when none are given
func DefaultOpts() Opts {
	return Opts{
		logger:         slog.Default(),
		clock:          clock.RealClock{},
		tracer:         otel.Tracer(tracerName),
		governor:       "basic",
		clockdownDelay: 50 * time.Millisecond,
		jobSlots:       3,
		maxUIDs:        0,
		btsLevel:       -1,
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

func WithTracer(t trace.Tracer) OptionFn {
	return func(o *Opts) {
		o.tracer = t
	}
}

// WithGovernor selects the governor active at start
func WithGovernor(name string) OptionFn {
	return func(o *Opts) {
		o.governor = name
	}
}

// WithClockdownDelay sets how long the GPU must stay powered off before it
// is clocked down to the scaling minimum
func WithClockdownDelay(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.clockdownDelay = d
	}
}

// WithJobSlots sets the number of hardware job slots
func WithJobSlots(n int) OptionFn {
	return func(o *Opts) {
		o.jobSlots = n
	}
}

// WithMaxUIDs caps the number of per-UID records; 0 means no cap
func WithMaxUIDs(n int) OptionFn {
	return func(o *Opts) {
		o.maxUIDs = n
	}
}

// WithBTSLevel sets the least performant level with bus traffic shaping on
func WithBTSLevel(level int) OptionFn {
	return func(o *Opts) {
		o.btsLevel = level
	}
}
