// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package otlp

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExporterShipsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	mem := tracetest.NewInMemoryExporter()
	e := NewExporter(WithLogger(discardLogger()), WithSpanExporter(mem))
	assert.Equal(t, "otlp", e.Name())
	require.NoError(t, e.Init())

	_, span := otel.Tracer("test").Start(context.Background(), "dvfs.set_level")
	span.End()

	require.NoError(t, e.provider.ForceFlush(context.Background()))
	spans := mem.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "dvfs.set_level", spans[0].Name)

	var found bool
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			found = true
			assert.Equal(t, serviceName, kv.Value.AsString())
		}
	}
	assert.True(t, found, "service.name resource attribute")
	assert.NoError(t, e.Shutdown())
}

func TestExporterSampleRatioZero(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	mem := tracetest.NewInMemoryExporter()
	e := NewExporter(WithLogger(discardLogger()), WithSpanExporter(mem), WithSampleRatio(0))
	require.NoError(t, e.Init())

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	span.End()

	require.NoError(t, e.provider.ForceFlush(context.Background()))
	assert.Empty(t, mem.GetSpans())
	assert.NoError(t, e.Shutdown())
}

func TestExporterOTLPHTTP(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// the exporter connects lazily; no collector is needed to initialize
	e := NewExporter(WithLogger(discardLogger()), WithEndpoint("127.0.0.1:4318", true))
	require.NoError(t, e.Init())
	assert.NotNil(t, e.provider)
	assert.NoError(t, e.Shutdown())
}

func TestShutdownWithoutInit(t *testing.T) {
	assert.NoError(t, NewExporter().Shutdown())
}
