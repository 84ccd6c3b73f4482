// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/alecthomas/kingpin/v2"
	_ "go.uber.org/automaxprocs"
	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/gpufreq/config"
	"github.com/sustainable-computing-io/gpufreq/internal/control"
	"github.com/sustainable-computing-io/gpufreq/internal/device"
	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
	"github.com/sustainable-computing-io/gpufreq/internal/exporter/otlp"
	"github.com/sustainable-computing-io/gpufreq/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/gpufreq/internal/exporter/stdout"
	"github.com/sustainable-computing-io/gpufreq/internal/logger"
	"github.com/sustainable-computing-io/gpufreq/internal/power"
	"github.com/sustainable-computing-io/gpufreq/internal/server"
	"github.com/sustainable-computing-io/gpufreq/internal/service"
	"github.com/sustainable-computing-io/gpufreq/internal/simulator"
	"github.com/sustainable-computing-io/gpufreq/internal/version"
)

func main() {
	cfg, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}
	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	logVersionInfo(logger)
	printConfigInfo(logger, cfg)

	services, err := createServices(logger, cfg)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		os.Exit(1)
	}

	if err := service.Init(logger, services); err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting gpufreq")
	if err := service.Run(context.Background(), logger, services); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gpufreq terminated with an error", "error", err)
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("gpufreq version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, error) {
	const appName = "gpufreq"
	app := kingpin.New(appName, "GPU DVFS governor and power state coordinator.")
	app.Version(version.Info().String())

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := logger.New("info", "text", os.Stderr)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		logger.Info("Loading configuration file", "path", *configFile)
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			logger.Error("Error loading config file", "error", err.Error())
			return nil, err
		}
		cfg = loadedCfg
		logger.Info("Completed loading of configuration file", "path", *configFile)
	}

	// flags override config file settings
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Printf(`
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

// newPlatform returns the GPU platform. Only the fake platform exists; the
// clocks support exactly the rates named by the configured table.
func newPlatform(cfg *config.Config) (*device.Platform, error) {
	fake := cfg.Dev.FakeGPU
	if !ptr.Deref(fake.Enabled, false) {
		return nil, fmt.Errorf("no GPU platform available; enable dev.fake-gpu")
	}

	rates0 := make([]uint32, 0, len(cfg.DVFS.Table))
	rates1 := make([]uint32, 0, len(cfg.DVFS.Table))
	for _, row := range cfg.DVFS.Table {
		rates0 = append(rates0, row.Clk0)
		rates1 = append(rates1, row.Clk1)
	}
	return device.NewFakePlatform(rates0, rates1, fake.BootClk0, fake.BootClk1, ptr.Deref(cfg.Power.SplitDomains, false)), nil
}

func newTable(cfg *config.Config, p *device.Platform) (*dvfs.Table, error) {
	vf0, err := p.GPU0.RateVoltTable()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rate table: %w", p.GPU0.Name(), err)
	}
	vf1, err := p.GPU1.RateVoltTable()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rate table: %w", p.GPU1.Name(), err)
	}
	return dvfs.NewTable(cfg.DVFS.Table, vf0, vf1)
}

func createServices(logger *slog.Logger, cfg *config.Config) ([]service.Service, error) {
	logger.Debug("Creating all services")

	p, err := newPlatform(cfg)
	if err != nil {
		return nil, err
	}
	table, err := newTable(cfg, p)
	if err != nil {
		return nil, err
	}

	pc := power.NewController(p.Top, p.Cores,
		power.WithLogger(logger),
		power.WithRetainTopOnSuspend(ptr.Deref(cfg.Power.RetainTopOnSuspend, false)),
		power.WithResumePowered(ptr.Deref(cfg.Power.ResumePowered, false)),
	)

	ctrl, err := dvfs.NewController(table, p, pc,
		dvfs.WithLogger(logger),
		dvfs.WithGovernor(cfg.DVFS.Governor),
		dvfs.WithClockdownDelay(cfg.DVFS.ClockdownHysteresis),
		dvfs.WithJobSlots(cfg.DVFS.JobSlots),
		dvfs.WithMaxUIDs(cfg.DVFS.MaxUIDs),
		dvfs.WithBTSLevel(cfg.DVFS.BTSLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DVFS controller: %w", err)
	}
	pc.SetEventHandler(ctrl)

	apiServer := server.NewAPIServer(
		server.WithLogger(logger),
		server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
	)

	// the tracer provider is installed before any span is recorded
	services := []service.Service{}
	if ptr.Deref(cfg.Exporter.OTLP.Enabled, false) {
		services = append(services, otlp.NewExporter(
			otlp.WithLogger(logger),
			otlp.WithEndpoint(cfg.Exporter.OTLP.Endpoint, ptr.Deref(cfg.Exporter.OTLP.Insecure, false)),
			otlp.WithSampleRatio(cfg.Exporter.OTLP.SampleRatio),
		))
	}

	services = append(services,
		pc,
		ctrl,
		apiServer,
		control.NewAttributes(apiServer, ctrl, logger),
		server.NewHealthProbe(apiServer, []service.Service{pc, ctrl}, logger),
		power.NewSleepListener(pc, logger),
	)

	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		promOpts := []prometheus.OptionFn{
			prometheus.WithLogger(logger),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
			prometheus.WithMetricsLevel(cfg.Exporter.Prometheus.MetricsLevel),
		}
		collectors := prometheus.CreateCollectors(ctrl, pc, promOpts...)
		services = append(services,
			prometheus.NewExporter(apiServer, append(promOpts, prometheus.WithCollectors(collectors))...))
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		services = append(services, stdout.NewExporter(ctrl,
			stdout.WithLogger(logger),
			stdout.WithInterval(cfg.Exporter.Stdout.Interval),
		))
	}

	if ptr.Deref(cfg.Debug.Pprof.Enabled, false) {
		services = append(services, server.NewPprof(apiServer))
	}

	fake := cfg.Dev.FakeGPU
	simOpts := []simulator.OptionFn{
		simulator.WithLogger(logger),
		simulator.WithInterval(fake.Interval),
		simulator.WithJobSlots(cfg.DVFS.JobSlots),
	}
	if len(fake.UIDs) > 0 {
		simOpts = append(simOpts, simulator.WithUIDs(fake.UIDs))
	}
	services = append(services,
		simulator.New(ctrl, pc, simOpts...),
		service.NewSignalHandler(os.Interrupt, syscall.SIGTERM),
	)

	return services, nil
}
