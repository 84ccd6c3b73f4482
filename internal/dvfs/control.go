// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import "slices"

// CurrentLevel returns the level the hardware is programmed at
func (c *Controller) CurrentLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// TargetLevel returns the level the controller is steering towards
func (c *Controller) TargetLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levelTarget
}

// CurFreq returns the front-end clock of the target level in kHz
func (c *Controller) CurFreq() uint32 {
	return c.table.At(c.TargetLevel()).Clk0
}

// AvailableFrequencies returns the front-end clocks of all levels in kHz
func (c *Controller) AvailableFrequencies() []uint32 {
	return c.table.Frequencies()
}

// MaxFreq returns the highest front-end clock in the table
func (c *Controller) MaxFreq() uint32 {
	return c.table.At(c.limits.levelMax).Clk0
}

// MinFreq returns the lowest front-end clock in the table
func (c *Controller) MinFreq() uint32 {
	return c.table.At(c.limits.levelMin).Clk0
}

// ScalingMaxFreq returns the front-end clock of the user ceiling
func (c *Controller) ScalingMaxFreq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.At(c.limits.scalingMax).Clk0
}

// ScalingMinFreq returns the front-end clock of the user floor
func (c *Controller) ScalingMinFreq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.At(c.limits.scalingMin).Clk0
}

// SetScalingMaxFreq sets the user ceiling to the level running at kHz. The
// floor is lowered with it when needed so the bounds never cross.
func (c *Controller) SetScalingMaxFreq(kHz uint32) error {
	level, err := c.table.FindLevel(kHz)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.limits.scalingMax = level
	c.limits.scalingMin = max(level, c.limits.scalingMin)
	c.reconcileLocked()
	c.logger.Info("scaling max updated", "level", level, "freq", kHz)
	return nil
}

// SetScalingMinFreq sets the user floor to the level running at kHz. The
// ceiling is raised with it when needed so the bounds never cross.
func (c *Controller) SetScalingMinFreq(kHz uint32) error {
	level, err := c.table.FindLevel(kHz)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.limits.scalingMin = level
	c.limits.scalingMax = min(level, c.limits.scalingMax)
	c.reconcileLocked()
	c.logger.Info("scaling min updated", "level", level, "freq", kHz)
	return nil
}

// Governor returns the name of the active governor
func (c *Controller) Governor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.governor.Name()
}

// AvailableGovernors returns the names accepted by SetGovernor
func (c *Controller) AvailableGovernors() []string {
	return Governors()
}

// SetGovernor switches the active governor. The new governor starts with
// fresh state; an unknown name leaves the active governor in place.
func (c *Controller) SetGovernor(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.governor.Name() == name {
		return nil
	}
	gov, err := newGovernor(name, c.table, c.level)
	if err != nil {
		return err
	}

	c.logger.Info("governor changed", "from", c.governor.Name(), "to", name)
	c.governor = gov
	return nil
}

// Table returns the operating point table
func (c *Controller) Table() *Table {
	return c.table
}

// ClockInfo returns the programmed clock rates of both domains in kHz
func (c *Controller) ClockInfo() (gpu0, gpu1 uint32) {
	var r0, r1 uint32
	c.gate.Access(func() {
		r0, r1 = c.gpu0.Rate(), c.gpu1.Rate()
	})
	return r0, r1
}

// Snapshot is a consistent copy of the controller state and its metrics
type Snapshot struct {
	Powered     bool
	Level       int
	Target      int
	Start       int
	ScalingMax  int
	ScalingMin  int
	ThermalMax  int
	Utilization int
	Governor    string
	QOSEnabled  bool
	BTSEnabled  bool
	Ledger      LedgerSnapshot
	UIDs        []UIDResidency
}

// Snapshot brings the residency metrics up to date and returns a copy of the
// controller state. Concurrent callers share a single refresh; the returned
// value must not be modified.
func (c *Controller) Snapshot() *Snapshot {
	v, _, _ := c.refreshGroup.Do("snapshot", func() (any, error) {
		return c.refresh(), nil
	})
	return v.(*Snapshot)
}

func (c *Controller) refresh() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	powered := c.gate.PoweredOn()
	c.metrics.update(c.level, c.level, powered)

	util := 0
	if powered {
		util = int(c.util.Load())
	}

	return &Snapshot{
		Powered:     powered,
		Level:       c.level,
		Target:      c.levelTarget,
		Start:       c.levelStart,
		ScalingMax:  c.limits.scalingMax,
		ScalingMin:  c.limits.scalingMin,
		ThermalMax:  c.limits.tmuMax,
		Utilization: util,
		Governor:    c.governor.Name(),
		QOSEnabled:  c.qos.enabled,
		BTSEnabled:  c.qos.shaping(),
		Ledger:      c.metrics.snapshot(),
		UIDs:        c.uids.snapshot(),
	}
}

// LevelTime is the residency of one frequency
type LevelTime struct {
	Freq uint32
	Residency
}

// TimeInState returns the up to date residency of every level, highest
// frequency first
func (c *Controller) TimeInState() []LevelTime {
	s := c.Snapshot()
	out := make([]LevelTime, 0, len(s.Ledger.Levels))
	for i, r := range s.Ledger.Levels {
		out = append(out, LevelTime{Freq: c.table.At(i).Clk0, Residency: r})
	}
	return out
}

// UIDTimeInState returns the busy time of every UID seen so far, sorted by UID
func (c *Controller) UIDTimeInState() []UIDResidency {
	return slices.Clone(c.Snapshot().UIDs)
}
