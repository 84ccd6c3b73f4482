// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package prometheus

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sustainable-computing-io/gpufreq/config"
	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
	"github.com/sustainable-computing-io/gpufreq/internal/power"
)

type mockAPIRegistry struct {
	mock.Mock
}

func (m *mockAPIRegistry) Register(endpoint, summary, description string, handler http.Handler) error {
	args := m.Called(endpoint, summary, description, handler)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDVFS struct{}

func (fakeDVFS) Snapshot() *dvfs.Snapshot { return &dvfs.Snapshot{} }
func (fakeDVFS) Table() *dvfs.Table       { return nil }

type fakePower struct{}

func (fakePower) Stats() power.Stats { return power.Stats{} }

func TestNewExporter(t *testing.T) {
	api := &mockAPIRegistry{}
	e := NewExporter(api, WithLogger(discardLogger()), WithDebugCollectors([]string{"process"}))

	assert.Equal(t, "prometheus", e.Name())
	assert.Equal(t, map[string]bool{"process": true}, e.debugCollectors)
	assert.Empty(t, e.collectors)
}

func TestCreateCollectors(t *testing.T) {
	tt := []struct {
		name  string
		level config.Level
		want  []string
	}{
		{name: "all", level: config.MetricsLevelAll, want: []string{"build_info", "dvfs", "power"}},
		{name: "no power", level: config.MetricsLevelDVFS | config.MetricsLevelUID, want: []string{"build_info", "dvfs"}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cs := CreateCollectors(fakeDVFS{}, fakePower{}, WithLogger(discardLogger()), WithMetricsLevel(tc.level))
			var names []string
			for name := range cs {
				names = append(names, name)
			}
			assert.ElementsMatch(t, tc.want, names)
		})
	}
}

type constCollector struct {
	desc *prom.Desc
}

func newConstCollector() *constCollector {
	return &constCollector{desc: prom.NewDesc("gpufreq_test_value", "Test value", nil, nil)}
}

func (c *constCollector) Describe(ch chan<- *prom.Desc) { ch <- c.desc }
func (c *constCollector) Collect(ch chan<- prom.Metric) {
	ch <- prom.MustNewConstMetric(c.desc, prom.GaugeValue, 42)
}

func TestExporterInit(t *testing.T) {
	t.Run("serves registered collectors", func(t *testing.T) {
		var handler http.Handler
		api := &mockAPIRegistry{}
		api.On("Register", "/metrics", "Metrics", "Prometheus metrics", mock.Anything).
			Run(func(args mock.Arguments) { handler = args.Get(3).(http.Handler) }).
			Return(nil)

		e := NewExporter(api, WithLogger(discardLogger()),
			WithCollectors(map[string]prom.Collector{"test": newConstCollector()}))
		require.NoError(t, e.Init())
		api.AssertExpectations(t)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "gpufreq_test_value 42")
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})

	t.Run("private registry", func(t *testing.T) {
		api := &mockAPIRegistry{}
		api.On("Register", "/metrics", "Metrics", "Prometheus metrics", mock.Anything).Return(nil)

		e := NewExporter(api, WithLogger(discardLogger()), WithDebugCollectors(nil),
			WithCollectors(map[string]prom.Collector{"test": newConstCollector()}))
		require.NoError(t, e.Init())

		families, err := e.registry.Gather()
		require.NoError(t, err)

		var mf *dto.MetricFamily
		for _, f := range families {
			assert.False(t, strings.HasPrefix(f.GetName(), "go_"), "unexpected runtime metric %s", f.GetName())
			assert.False(t, strings.HasPrefix(f.GetName(), "process_"), "unexpected process metric %s", f.GetName())
			if f.GetName() == "gpufreq_test_value" {
				mf = f
			}
		}
		require.NotNil(t, mf, "registered collector is gathered")
		assert.Equal(t, dto.MetricType_GAUGE, mf.GetType())
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, 42.0, mf.GetMetric()[0].GetGauge().GetValue())
	})

	t.Run("unknown debug collector", func(t *testing.T) {
		api := &mockAPIRegistry{}
		e := NewExporter(api, WithLogger(discardLogger()), WithDebugCollectors([]string{"bogus"}))
		assert.ErrorContains(t, e.Init(), "unknown collector: bogus")
		api.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("duplicate collector", func(t *testing.T) {
		api := &mockAPIRegistry{}
		c := newConstCollector()
		e := NewExporter(api, WithLogger(discardLogger()),
			WithCollectors(map[string]prom.Collector{"a": c, "b": newConstCollector()}))
		assert.ErrorContains(t, e.Init(), "failed to register collector b")
	})

	t.Run("registration failure", func(t *testing.T) {
		api := &mockAPIRegistry{}
		api.On("Register", "/metrics", "Metrics", "Prometheus metrics", mock.Anything).Return(assert.AnError)
		e := NewExporter(api, WithLogger(discardLogger()))
		assert.ErrorIs(t, e.Init(), assert.AnError)
	})
}
