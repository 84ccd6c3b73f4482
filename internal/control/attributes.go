// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package control serves the DVFS control attributes under /dvfs/. Each
// attribute is a small plain text document; writable ones accept PUT.
// Frequencies are in kHz and times in ms.
package control

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

// maxWriteSize bounds the body of an attribute write
const maxWriteSize = 64

type APIRegistry interface {
	Register(endpoint, summary, description string, handler http.Handler) error
}

// DVFS is the control surface of the DVFS controller
type DVFS interface {
	CurFreq() uint32
	AvailableFrequencies() []uint32
	MaxFreq() uint32
	MinFreq() uint32
	ScalingMaxFreq() uint32
	ScalingMinFreq() uint32
	SetScalingMaxFreq(kHz uint32) error
	SetScalingMinFreq(kHz uint32) error

	Governor() string
	AvailableGovernors() []string
	SetGovernor(name string) error

	ThermalMaxFreq() uint32
	HandleThermalEvent(ev dvfs.ThermalEvent, level int) error

	Table() *dvfs.Table
	ClockInfo() (gpu0, gpu1 uint32)
	Snapshot() *dvfs.Snapshot
	TimeInState() []dvfs.LevelTime
	UIDTimeInState() []dvfs.UIDResidency
}

// Attributes registers the /dvfs/ handlers on the API server
type Attributes struct {
	logger *slog.Logger
	api    APIRegistry
	dvfs   DVFS
	mux    *http.ServeMux
}

var _ service.Initializer = (*Attributes)(nil)

func NewAttributes(api APIRegistry, d DVFS, logger *slog.Logger) *Attributes {
	return &Attributes{
		logger: logger.With("service", "control"),
		api:    api,
		dvfs:   d,
		mux:    http.NewServeMux(),
	}
}

func (a *Attributes) Name() string {
	return "control"
}

func (a *Attributes) Init() error {
	read := map[string]func(w io.Writer){
		"cur_freq":              a.curFreq,
		"available_frequencies": a.availableFrequencies,
		"max_freq":              func(w io.Writer) { fmt.Fprintf(w, "%d\n", a.dvfs.MaxFreq()) },
		"min_freq":              func(w io.Writer) { fmt.Fprintf(w, "%d\n", a.dvfs.MinFreq()) },
		"scaling_max_freq":      func(w io.Writer) { fmt.Fprintf(w, "%d\n", a.dvfs.ScalingMaxFreq()) },
		"scaling_min_freq":      func(w io.Writer) { fmt.Fprintf(w, "%d\n", a.dvfs.ScalingMinFreq()) },
		"governor":              func(w io.Writer) { fmt.Fprintf(w, "%s\n", a.dvfs.Governor()) },
		"available_governors":   func(w io.Writer) { fmt.Fprintf(w, "%s\n", strings.Join(a.dvfs.AvailableGovernors(), " ")) },
		"tmu_max_freq":          func(w io.Writer) { fmt.Fprintf(w, "%d\n", a.dvfs.ThermalMaxFreq()) },
		"time_in_state":         a.timeInState,
		"power_stats":           a.powerStats,
		"uid_time_in_state":     a.uidTimeInState,
		"dvfs_table":            a.table,
		"clock_info":            a.clockInfo,
	}
	for name, fn := range read {
		a.mux.HandleFunc("GET /dvfs/"+name, a.show(fn))
	}

	write := map[string]func(string) error{
		"scaling_max_freq": a.withFreq(a.dvfs.SetScalingMaxFreq),
		"scaling_min_freq": a.withFreq(a.dvfs.SetScalingMinFreq),
		"governor":         a.dvfs.SetGovernor,
		"thermal":          a.thermal,
	}
	for name, fn := range write {
		a.mux.HandleFunc("PUT /dvfs/"+name, a.store(name, fn))
	}

	return a.api.Register("/dvfs/", "DVFS", "DVFS control attributes", a.mux)
}

func (a *Attributes) show(fn func(w io.Writer)) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fn(w)
	}
}

func (a *Attributes) store(name string, fn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWriteSize+1))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > maxWriteSize {
			http.Error(w, "value too long", http.StatusRequestEntityTooLarge)
			return
		}

		value := strings.TrimSpace(string(body))
		if err := fn(value); err != nil {
			a.logger.Debug("attribute write rejected", "attribute", name, "value", value, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.logger.Info("attribute written", "attribute", name, "value", value)
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseFreq(s string) (uint32, error) {
	kHz, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", dvfs.ErrInvalidFrequency, s)
	}
	return uint32(kHz), nil
}

func (a *Attributes) withFreq(set func(uint32) error) func(string) error {
	return func(s string) error {
		kHz, err := parseFreq(s)
		if err != nil {
			return err
		}
		return set(kHz)
	}
}

// thermal accepts "cold", "normal" or "throttling <kHz>"
func (a *Attributes) thermal(s string) error {
	name, arg, _ := strings.Cut(s, " ")
	ev, err := dvfs.ParseThermalEvent(name)
	if err != nil {
		return err
	}
	if ev != dvfs.ThermalThrottling {
		return a.dvfs.HandleThermalEvent(ev, 0)
	}

	arg = strings.TrimSpace(arg)
	if arg == "" {
		return errors.New("throttling requires a frequency")
	}
	kHz, err := parseFreq(arg)
	if err != nil {
		return err
	}
	level, err := a.dvfs.Table().FindLevel(kHz)
	if err != nil {
		return err
	}
	return a.dvfs.HandleThermalEvent(ev, level)
}
