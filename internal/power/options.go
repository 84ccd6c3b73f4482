// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sustainable-computing-io/gpufreq/internal/power"

type Opts struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	retainTop     bool
	resumePowered bool
}

func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithTracer(t trace.Tracer) OptionFn {
	return func(o *Opts) {
		o.tracer = t
	}
}

// WithRetainTopOnSuspend keeps the top-level domain powered across suspend.
// Only meaningful with split domains.
func WithRetainTopOnSuspend(retain bool) OptionFn {
	return func(o *Opts) {
		o.retainTop = retain
	}
}

// WithResumePowered powers the GPU on when resuming from suspend instead of
// leaving it off until the next job
func WithResumePowered(powered bool) OptionFn {
	return func(o *Opts) {
		o.resumePowered = powered
	}
}
