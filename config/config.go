// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// MaxOperatingPoints is the maximum number of rows in the DVFS table
const MaxOperatingPoints = 16

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// QOS is the set of platform votes held while the GPU runs at an
	// operating point. Frequencies are in kHz; CPU2Max of 0 means no limit.
	QOS struct {
		INTMin  int `yaml:"intMin"`
		MIFMin  int `yaml:"mifMin"`
		CPU0Min int `yaml:"cpu0Min"`
		CPU1Min int `yaml:"cpu1Min"`
		CPU2Max int `yaml:"cpu2Max"`
	}

	// OPP is one row of the DVFS table. Rows are ordered from the highest
	// throughput (index 0) to the lowest.
	OPP struct {
		Clk0       uint32 `yaml:"clk0"`
		Clk1       uint32 `yaml:"clk1"`
		UtilMin    int    `yaml:"utilMin"`
		UtilMax    int    `yaml:"utilMax"`
		Hysteresis int    `yaml:"hysteresis"`
		QOS        QOS    `yaml:"qos"`
	}

	DVFS struct {
		Governor            string        `yaml:"governor"`
		ClockdownHysteresis time.Duration `yaml:"clockdownHysteresis"`
		JobSlots            int           `yaml:"jobSlots"`

		// MaxUIDs caps the number of per-application records; 0 is unlimited.
		// Records are never freed once created.
		MaxUIDs int `yaml:"maxUIDs"`

		// BTSLevel is the least performant level at which bus traffic
		// shaping is enabled; negative disables it.
		BTSLevel int   `yaml:"btsLevel"`
		Table    []OPP `yaml:"table"`
	}

	Power struct {
		// SplitDomains keeps a top-level domain powered and cycles only the
		// shader core domain on idle.
		SplitDomains       *bool `yaml:"splitDomains"`
		RetainTopOnSuspend *bool `yaml:"retainTopOnSuspend"`
		// ResumePowered powers the GPU back on when resuming from suspend.
		ResumePowered *bool `yaml:"resumePowered"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeGPU struct {
			Enabled  *bool         `yaml:"enabled"`
			BootClk0 uint32        `yaml:"bootClk0"`
			BootClk1 uint32        `yaml:"bootClk1"`
			Interval time.Duration `yaml:"interval"`
			UIDs     []uint32      `yaml:"uids"`
		} `yaml:"fake-gpu"`
	}

	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	StdoutExporter struct {
		Enabled  *bool         `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
		MetricsLevel    Level    `yaml:"metricsLevel"`
	}

	// OTLPExporter ships DVFS and power transition spans to an OTLP/HTTP
	// collector
	OTLPExporter struct {
		Enabled     *bool   `yaml:"enabled"`
		Endpoint    string  `yaml:"endpoint"`
		Insecure    *bool   `yaml:"insecure"`
		SampleRatio float64 `yaml:"sampleRatio"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
		OTLP       OTLPExporter       `yaml:"otlp"`
	}

	PprofDebug struct {
		Enabled *bool `yaml:"enabled"`
	}

	Debug struct {
		Pprof PprofDebug `yaml:"pprof"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		DVFS     DVFS     `yaml:"dvfs"`
		Power    Power    `yaml:"power"`
		Exporter Exporter `yaml:"exporter"`
		Web      Web      `yaml:"web"`
		Debug    Debug    `yaml:"debug"`
		Dev      Dev      `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

// MetricsLevelValue is a kingpin.Value accumulating repeated --metrics flags
type MetricsLevelValue struct {
	level *Level
}

func NewMetricsLevelValue(target *Level) *MetricsLevelValue {
	return &MetricsLevelValue{level: target}
}

func (m *MetricsLevelValue) Set(value string) error {
	level, err := ParseLevel([]string{value})
	if err != nil {
		return err
	}
	// first explicit value replaces the default
	if *m.level == MetricsLevelAll {
		*m.level = 0
	}
	*m.level |= level
	return nil
}

func (m *MetricsLevelValue) String() string {
	return m.level.String()
}

func (m *MetricsLevelValue) IsCumulative() bool {
	return true
}

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	DVFSGovernorFlag  = "dvfs.governor"
	DVFSClockdownFlag = "dvfs.clockdown-hysteresis"
	DVFSTable         = "dvfs.table" // not a flag

	pprofEnabledFlag = "debug.pprof"

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	ExporterStdoutEnabledFlag = "exporter.stdout"

	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	// NOTE: not a flag
	ExporterPrometheusDebugCollectors = "exporter.prometheus.debug-collectors"
	ExporterPrometheusMetricsFlag     = "metrics"

	ExporterOTLPEnabledFlag  = "exporter.otlp"
	ExporterOTLPEndpointFlag = "exporter.otlp.endpoint"

// WARN:  dev settings shouldn't be exposed as flags as flags are intended for end users
)

// DefaultTable is the operating point table used when none is configured
func DefaultTable() []OPP {
	return []OPP{
		{Clk0: 848000, Clk1: 996000, UtilMin: 80, UtilMax: 100, Hysteresis: 1, QOS: QOS{INTMin: 533000, MIFMin: 3172000, CPU0Min: 0, CPU1Min: 1197000, CPU2Max: 0}},
		{Clk0: 762000, Clk1: 903000, UtilMin: 75, UtilMax: 95, Hysteresis: 1, QOS: QOS{INTMin: 533000, MIFMin: 2730000, CPU0Min: 0, CPU1Min: 1197000, CPU2Max: 0}},
		{Clk0: 676000, Clk1: 848000, UtilMin: 70, UtilMax: 90, Hysteresis: 2, QOS: QOS{INTMin: 400000, MIFMin: 2288000, CPU0Min: 0, CPU1Min: 0, CPU2Max: 0}},
		{Clk0: 572000, Clk1: 762000, UtilMin: 65, UtilMax: 90, Hysteresis: 2, QOS: QOS{INTMin: 400000, MIFMin: 1794000, CPU0Min: 0, CPU1Min: 0, CPU2Max: 0}},
		{Clk0: 471000, Clk1: 676000, UtilMin: 60, UtilMax: 85, Hysteresis: 2, QOS: QOS{INTMin: 200000, MIFMin: 1539000, CPU0Min: 0, CPU1Min: 0, CPU2Max: 2253000}},
		{Clk0: 400000, Clk1: 572000, UtilMin: 55, UtilMax: 85, Hysteresis: 3, QOS: QOS{INTMin: 200000, MIFMin: 1352000, CPU0Min: 0, CPU1Min: 0, CPU2Max: 2253000}},
		{Clk0: 302000, Clk1: 471000, UtilMin: 50, UtilMax: 80, Hysteresis: 3, QOS: QOS{INTMin: 0, MIFMin: 845000, CPU0Min: 0, CPU1Min: 0, CPU2Max: 1826000}},
		{Clk0: 151000, Clk1: 302000, UtilMin: 0, UtilMax: 75, Hysteresis: 4, QOS: QOS{INTMin: 0, MIFMin: 421000, CPU0Min: 0, CPU1Min: 0, CPU2Max: 1826000}},
	}
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		DVFS: DVFS{
			Governor:            "basic",
			ClockdownHysteresis: 50 * time.Millisecond,
			JobSlots:            3,
			BTSLevel:            1,
			Table:               DefaultTable(),
		},
		Power: Power{
			SplitDomains:       ptr.To(false),
			RetainTopOnSuspend: ptr.To(false),
			ResumePowered:      ptr.To(false),
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:  ptr.To(false),
				Interval: 10 * time.Second,
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(true),
				DebugCollectors: []string{"go"},
				MetricsLevel:    MetricsLevelAll,
			},
			OTLP: OTLPExporter{
				Enabled:     ptr.To(false),
				Endpoint:    "localhost:4318",
				Insecure:    ptr.To(true),
				SampleRatio: 1.0,
			},
		},
		Web: Web{
			ListenAddresses: []string{":28283"},
		},
		Debug: Debug{
			Pprof: PprofDebug{
				Enabled: ptr.To(false),
			},
		},
	}

	cfg.Dev.FakeGPU.Enabled = ptr.To(false)
	cfg.Dev.FakeGPU.BootClk0 = 572000
	cfg.Dev.FakeGPU.BootClk1 = 762000
	cfg.Dev.FakeGPU.Interval = 16 * time.Millisecond

	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// a configured table replaces the default one instead of merging row by row
	cfg.DVFS.Table = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.DVFS.Table) == 0 {
		cfg.DVFS.Table = DefaultTable()
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		// read-only; close errors carry no information
		_ = file.Close()
	}()

	return Load(file)
}

// ConfigUpdaterFn applies parsed command line flags to a Config
type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command line flags on app and returns a function
// that applies only the flags explicitly set by the user.
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		flagsSet = map[string]bool{}
		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")

	governor := app.Flag(DVFSGovernorFlag, "DVFS governor selecting the next operating point").Default("basic").String()
	clockdown := app.Flag(DVFSClockdownFlag,
		"Delay after power off before the GPU is clocked down to the scaling minimum").Default("50ms").Duration()

	enablePprof := app.Flag(pprofEnabledFlag, "Enable pprof debug endpoints").Default("false").Bool()
	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(":28283").Strings()

	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("false").Bool()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("true").Bool()

	otlpExporterEnabled := app.Flag(ExporterOTLPEnabledFlag, "Export DVFS and power transition spans over OTLP/HTTP").Default("false").Bool()
	otlpEndpoint := app.Flag(ExporterOTLPEndpointFlag, "OTLP/HTTP collector endpoint (host:port)").Default("localhost:4318").String()

	metricsLevel := MetricsLevelAll
	app.Flag(ExporterPrometheusMetricsFlag, "Metrics groups to export (dvfs,power,uid)").SetValue(NewMetricsLevelValue(&metricsLevel))

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[DVFSGovernorFlag] {
			cfg.DVFS.Governor = *governor
		}
		if flagsSet[DVFSClockdownFlag] {
			cfg.DVFS.ClockdownHysteresis = *clockdown
		}

		if flagsSet[pprofEnabledFlag] {
			cfg.Debug.Pprof.Enabled = enablePprof
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}
		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}
		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}
		if flagsSet[ExporterPrometheusMetricsFlag] {
			cfg.Exporter.Prometheus.MetricsLevel = metricsLevel
		}
		if flagsSet[ExporterOTLPEnabledFlag] {
			cfg.Exporter.OTLP.Enabled = otlpExporterEnabled
		}
		if flagsSet[ExporterOTLPEndpointFlag] {
			cfg.Exporter.OTLP.Endpoint = *otlpEndpoint
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.DVFS.Governor = strings.ToLower(strings.TrimSpace(c.DVFS.Governor))
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	for i := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(c.Web.ListenAddresses[i])
	}
	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}
	c.Exporter.OTLP.Endpoint = strings.TrimSpace(c.Exporter.OTLP.Endpoint)
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []string

	{ // log
		switch c.Log.Level {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
		switch c.Log.Format {
		case "text", "json":
		default:
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // dvfs
		if c.DVFS.Governor == "" {
			errs = append(errs, "dvfs governor cannot be empty")
		}
		if c.DVFS.ClockdownHysteresis <= 0 {
			errs = append(errs, fmt.Sprintf("invalid clockdown hysteresis: %s must be positive", c.DVFS.ClockdownHysteresis))
		}
		if c.DVFS.JobSlots < 1 {
			errs = append(errs, fmt.Sprintf("invalid job slots: %d must be at least 1", c.DVFS.JobSlots))
		}
		if c.DVFS.MaxUIDs < 0 {
			errs = append(errs, fmt.Sprintf("invalid max UIDs: %d can't be negative", c.DVFS.MaxUIDs))
		}
		errs = append(errs, validateTable(c.DVFS.Table)...)
	}

	{ // Web config file
		if c.Web.Config != "" {
			if err := canReadFile(c.Web.Config); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
			}
		}
	}

	{ // Web listen addresses
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "at least one web listen address must be specified")
		}
		for _, addr := range c.Web.ListenAddresses {
			if err := validateListenAddress(addr); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
			}
		}
	}

	{ // exporters
		if ptr.Deref(c.Exporter.Stdout.Enabled, false) && c.Exporter.Stdout.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid stdout exporter interval: %s must be positive", c.Exporter.Stdout.Interval))
		}
		if ptr.Deref(c.Exporter.OTLP.Enabled, false) {
			if c.Exporter.OTLP.Endpoint == "" {
				errs = append(errs, "otlp exporter endpoint must be specified")
			}
			if r := c.Exporter.OTLP.SampleRatio; r < 0 || r > 1 {
				errs = append(errs, fmt.Sprintf("invalid otlp sample ratio: %v must be within [0, 1]", r))
			}
		}
	}

	{ // dev
		if ptr.Deref(c.Dev.FakeGPU.Enabled, false) && c.Dev.FakeGPU.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid fake gpu interval: %s must be positive", c.Dev.FakeGPU.Interval))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}
	return nil
}

func validateTable(table []OPP) []string {
	var errs []string
	if len(table) == 0 {
		return []string{"dvfs table cannot be empty"}
	}
	if len(table) > MaxOperatingPoints {
		errs = append(errs, fmt.Sprintf("dvfs table has %d rows, at most %d allowed", len(table), MaxOperatingPoints))
	}
	for i, row := range table {
		if row.Clk0 == 0 || row.Clk1 == 0 {
			errs = append(errs, fmt.Sprintf("dvfs table row %d: clocks must be non-zero", i))
		}
		if row.UtilMin < 0 || row.UtilMax > 100 || row.UtilMin > row.UtilMax {
			errs = append(errs, fmt.Sprintf("dvfs table row %d: utilization band [%d, %d] must be within [0, 100]",
				i, row.UtilMin, row.UtilMax))
		}
		if row.Hysteresis < 0 {
			errs = append(errs, fmt.Sprintf("dvfs table row %d: hysteresis can't be negative", i))
		}
		if i > 0 && row.Clk0 >= table[i-1].Clk0 {
			errs = append(errs, fmt.Sprintf("dvfs table row %d: clk0 %d must be lower than row %d (%d)",
				i, row.Clk0, i-1, table[i-1].Clk0))
		}
	}
	return errs
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	buf := make([]byte, 1)
	if _, err := f.Read(buf); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func validateListenAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: only reachable if yaml marshalling fails
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{DVFSGovernorFlag, c.DVFS.Governor},
		{DVFSClockdownFlag, c.DVFS.ClockdownHysteresis.String()},
		{DVFSTable, fmt.Sprintf("%d rows", len(c.DVFS.Table))},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterPrometheusEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Prometheus.Enabled, false))},
		{ExporterPrometheusDebugCollectors, strings.Join(c.Exporter.Prometheus.DebugCollectors, ", ")},
		{ExporterPrometheusMetricsFlag, c.Exporter.Prometheus.MetricsLevel.String()},
		{ExporterOTLPEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.OTLP.Enabled, false))},
		{ExporterOTLPEndpointFlag, c.Exporter.OTLP.Endpoint},
		{pprofEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Debug.Pprof.Enabled, false))},
	}

	sb := strings.Builder{}
	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}
	return sb.String()
}
