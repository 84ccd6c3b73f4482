// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"fmt"
	"math"

	"github.com/sustainable-computing-io/gpufreq/config"
	"github.com/sustainable-computing-io/gpufreq/internal/device"
)

// CPUFreqMax is the CPU cluster 2 ceiling meaning "no limit"
const CPUFreqMax = math.MaxInt32

// QOSVote is the set of platform votes held at an operating point
type QOSVote struct {
	INTMin  int
	MIFMin  int
	CPU0Min int
	CPU1Min int
	CPU2Max int
}

// OperatingPoint is one row of the table. Clocks are in kHz, voltages in mV.
type OperatingPoint struct {
	Clk0, Clk1 uint32
	Vol0, Vol1 uint32

	UtilMin, UtilMax int
	// Hysteresis is the number of governor ticks below UtilMin tolerated
	// before clocking down from this level.
	Hysteresis int
	QOS        QOSVote
}

// Table is the immutable list of operating points. Level 0 is the highest
// throughput point and Len()-1 the lowest.
type Table struct {
	opps []OperatingPoint
}

// NewTable builds a table from configured rows, resolving each row's voltages
// from the rate/voltage maps of the two GPU clock domains.
func NewTable(rows []config.OPP, vf0, vf1 []device.RateVolt) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrConfig)
	}
	if len(rows) > config.MaxOperatingPoints {
		return nil, fmt.Errorf("%w: %d rows exceed the limit of %d", ErrConfig, len(rows), config.MaxOperatingPoints)
	}

	volts0, volts1 := voltMap(vf0), voltMap(vf1)
	opps := make([]OperatingPoint, 0, len(rows))

	for i, r := range rows {
		if i > 0 && r.Clk0 >= rows[i-1].Clk0 {
			return nil, fmt.Errorf("%w: row %d: clk0 %d kHz is not lower than the previous row", ErrConfig, i, r.Clk0)
		}
		vol0, ok := volts0[r.Clk0]
		if !ok {
			return nil, fmt.Errorf("%w: row %d: no voltage for gpu0 rate %d kHz", ErrConfig, i, r.Clk0)
		}
		vol1, ok := volts1[r.Clk1]
		if !ok {
			return nil, fmt.Errorf("%w: row %d: no voltage for gpu1 rate %d kHz", ErrConfig, i, r.Clk1)
		}

		cpu2Max := r.QOS.CPU2Max
		if cpu2Max == 0 {
			cpu2Max = CPUFreqMax
		}

		opps = append(opps, OperatingPoint{
			Clk0:       r.Clk0,
			Clk1:       r.Clk1,
			Vol0:       vol0,
			Vol1:       vol1,
			UtilMin:    r.UtilMin,
			UtilMax:    r.UtilMax,
			Hysteresis: r.Hysteresis,
			QOS: QOSVote{
				INTMin:  r.QOS.INTMin,
				MIFMin:  r.QOS.MIFMin,
				CPU0Min: r.QOS.CPU0Min,
				CPU1Min: r.QOS.CPU1Min,
				CPU2Max: cpu2Max,
			},
		})
	}
	return &Table{opps: opps}, nil
}

func voltMap(vf []device.RateVolt) map[uint32]uint32 {
	m := make(map[uint32]uint32, len(vf))
	for _, rv := range vf {
		m[rv.Rate] = rv.Volt
	}
	return m
}

// Len returns the number of levels
func (t *Table) Len() int {
	return len(t.opps)
}

// At returns the operating point of level. It panics on an out of range level.
func (t *Table) At(level int) OperatingPoint {
	return t.opps[level]
}

// Valid reports whether level indexes a row
func (t *Table) Valid(level int) bool {
	return level >= 0 && level < len(t.opps)
}

// FindLevel returns the level whose front-end clock is exactly kHz
func (t *Table) FindLevel(kHz uint32) (int, error) {
	for i, opp := range t.opps {
		if opp.Clk0 == kHz {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %d kHz is not in the table", ErrInvalidFrequency, kHz)
}

// BootLevel returns the lowest throughput level matching both boot clocks
func (t *Table) BootLevel(clk0, clk1 uint32) (int, error) {
	for i := len(t.opps) - 1; i >= 0; i-- {
		if t.opps[i].Clk0 == clk0 && t.opps[i].Clk1 == clk1 {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: boot clocks %d/%d kHz match no table row", ErrConfig, clk0, clk1)
}

// Frequencies returns the front-end clocks of all levels, highest first
func (t *Table) Frequencies() []uint32 {
	out := make([]uint32, len(t.opps))
	for i, opp := range t.opps {
		out[i] = opp.Clk0
	}
	return out
}
