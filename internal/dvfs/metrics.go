// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"slices"
	"time"

	"k8s.io/utils/clock"
)

// Residency accumulates the time spent in a state and how often it was entered
type Residency struct {
	Time      time.Duration
	Entries   uint64
	LastEntry time.Time
}

func (r *Residency) enter(now time.Time) {
	r.Entries++
	r.LastEntry = now
}

// ledger attributes elapsed time to the level and power state the GPU was in.
// All methods require the DVFS lock.
type ledger struct {
	clock clock.PassiveClock
	uids  *uidRegistry

	levels   []Residency
	powerOn  Residency
	powerOff Residency

	lastPowered bool
	lastLevel   int
	lastTime    time.Time
}

func newLedger(clk clock.PassiveClock, uids *uidRegistry, n, level int, powered bool) *ledger {
	now := clk.Now()
	m := &ledger{
		clock:       clk,
		uids:        uids,
		levels:      make([]Residency, n),
		lastPowered: powered,
		lastLevel:   level,
		lastTime:    now,
	}
	m.levels[level].enter(now)
	return m
}

// update charges the time since the previous update to the previous state and
// records the transition to (next, powered). level is the level the GPU has
// been running at. Calling it twice with the same arguments is harmless.
func (m *ledger) update(level, next int, powered bool) {
	now := m.clock.Now()
	elapsed := now.Sub(m.lastTime)

	if m.lastPowered {
		if powered && level != next {
			m.levels[next].enter(now)
			m.uids.levelChanged(now, next)
		}
		if !powered {
			m.powerOff.enter(now)
		}
		m.levels[level].Time += elapsed
		m.powerOn.Time += elapsed
	} else {
		if powered {
			m.powerOn.enter(now)
			if m.lastLevel != next {
				m.levels[next].enter(now)
				m.uids.levelChanged(now, next)
			}
		}
		m.powerOff.Time += elapsed
	}

	// lastLevel is the level last run powered; a level change while off is
	// entered when power returns
	if powered || m.lastPowered {
		m.lastLevel = next
	}
	m.lastPowered = powered
	m.lastTime = now
}

// LedgerSnapshot is a point in time copy of the ledger
type LedgerSnapshot struct {
	Timestamp time.Time
	Levels    []Residency
	PowerOn   Residency
	PowerOff  Residency
}

func (m *ledger) snapshot() LedgerSnapshot {
	return LedgerSnapshot{
		Timestamp: m.lastTime,
		Levels:    slices.Clone(m.levels),
		PowerOn:   m.powerOn,
		PowerOff:  m.powerOff,
	}
}
