// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package otlp ships the DVFS and power transition spans to an OTLP/HTTP
// collector. It installs the global tracer provider the controllers trace
// through.
package otlp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/sustainable-computing-io/gpufreq/internal/service"
	"github.com/sustainable-computing-io/gpufreq/internal/version"
)

const serviceName = "gpufreq"

type Opts struct {
	logger      *slog.Logger
	endpoint    string
	insecure    bool
	sampleRatio float64
	exporter    sdktrace.SpanExporter
}

func DefaultOpts() Opts {
	return Opts{
		logger:      slog.Default(),
		endpoint:    "localhost:4318",
		insecure:    true,
		sampleRatio: 1.0,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithEndpoint sets the collector host:port; insecure disables TLS
func WithEndpoint(endpoint string, insecure bool) OptionFn {
	return func(o *Opts) {
		o.endpoint = endpoint
		o.insecure = insecure
	}
}

func WithSampleRatio(r float64) OptionFn {
	return func(o *Opts) {
		o.sampleRatio = r
	}
}

// WithSpanExporter replaces the OTLP/HTTP exporter
func WithSpanExporter(e sdktrace.SpanExporter) OptionFn {
	return func(o *Opts) {
		o.exporter = e
	}
}

type Exporter struct {
	logger      *slog.Logger
	endpoint    string
	insecure    bool
	sampleRatio float64
	exporter    sdktrace.SpanExporter

	provider *sdktrace.TracerProvider
}

var (
	_ service.Initializer = (*Exporter)(nil)
	_ service.Shutdowner  = (*Exporter)(nil)
)

func NewExporter(applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:      opts.logger.With("service", "otlp"),
		endpoint:    opts.endpoint,
		insecure:    opts.insecure,
		sampleRatio: opts.sampleRatio,
		exporter:    opts.exporter,
	}
}

func (e *Exporter) Name() string {
	return "otlp"
}

// Init creates the tracer provider and makes it the global one
func (e *Exporter) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.Info().Version),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("failed to build otel resource: %w", err)
	}

	exp := e.exporter
	if exp == nil {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(e.endpoint)}
		if e.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err = otlptracehttp.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create otlp trace exporter: %w", err)
		}
	}

	e.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(e.sampleRatio))),
	)
	otel.SetTracerProvider(e.provider)

	e.logger.Info("OTLP trace export enabled", "endpoint", e.endpoint, "insecure", e.insecure, "sample-ratio", e.sampleRatio)
	return nil
}

// Shutdown flushes buffered spans
func (e *Exporter) Shutdown() error {
	if e.provider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.provider.Shutdown(ctx)
}
