// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/gpufreq/config"
)

func fakeConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Dev.FakeGPU.Enabled = ptr.To(true)
	return cfg
}

func serviceNames(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	services, err := createServices(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.NoError(t, err)

	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name())
	}
	return names
}

func TestNewPlatform(t *testing.T) {
	t.Run("fake gpu disabled", func(t *testing.T) {
		_, err := newPlatform(config.DefaultConfig())
		assert.ErrorContains(t, err, "no GPU platform available")
	})

	t.Run("split domains", func(t *testing.T) {
		cfg := fakeConfig()
		cfg.Power.SplitDomains = ptr.To(true)
		p, err := newPlatform(cfg)
		require.NoError(t, err)
		assert.NotNil(t, p.Cores)
		assert.Equal(t, uint32(572000), p.GPU0.Rate())

		table, err := newTable(cfg, p)
		require.NoError(t, err)
		assert.Equal(t, len(cfg.DVFS.Table), table.Len())
	})

	t.Run("single domain", func(t *testing.T) {
		p, err := newPlatform(fakeConfig())
		require.NoError(t, err)
		assert.Nil(t, p.Cores)
	})
}

func TestCreateServices(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		names := serviceNames(t, fakeConfig())
		assert.Equal(t, []string{
			"power", "dvfs", "api-server", "control", "health-probe", "sleep-listener",
			"prometheus", "simulator", "signal-handler",
		}, names)
	})

	t.Run("all exporters", func(t *testing.T) {
		cfg := fakeConfig()
		cfg.Exporter.Stdout.Enabled = ptr.To(true)
		cfg.Exporter.OTLP.Enabled = ptr.To(true)
		cfg.Debug.Pprof.Enabled = ptr.To(true)

		names := serviceNames(t, cfg)
		assert.Equal(t, "otlp", names[0], "tracing is set up first")
		assert.Contains(t, names, "stdout")
		assert.Contains(t, names, "pprof")
	})

	t.Run("boot clocks outside the table", func(t *testing.T) {
		cfg := fakeConfig()
		cfg.Dev.FakeGPU.BootClk0 = 123
		_, err := createServices(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
		assert.Error(t, err)
	})
}
