// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"fmt"
	"strings"
)

// ThermalEvent is a notification from the thermal management unit
type ThermalEvent int

const (
	ThermalCold ThermalEvent = iota
	ThermalNormal
	ThermalThrottling
)

func (e ThermalEvent) String() string {
	switch e {
	case ThermalCold:
		return "cold"
	case ThermalNormal:
		return "normal"
	case ThermalThrottling:
		return "throttling"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// ParseThermalEvent parses the name of a thermal event
func ParseThermalEvent(s string) (ThermalEvent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cold":
		return ThermalCold, nil
	case "normal":
		return ThermalNormal, nil
	case "throttling":
		return ThermalThrottling, nil
	default:
		return 0, fmt.Errorf("unknown thermal event %q", s)
	}
}

// SetThermalCeiling limits the GPU to level or less performant ones
func (c *Controller) SetThermalCeiling(level int) error {
	if !c.table.Valid(level) {
		return fmt.Errorf("%w: thermal ceiling %d not in [0, %d]", ErrInvalidLevel, level, c.table.Len()-1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.limits.tmuMax = level
	c.reconcileLocked()
	c.logger.Info("thermal ceiling set", "level", level, "clk0", c.table.At(level).Clk0)
	return nil
}

// HandleThermalEvent applies a thermal notification. Cold and normal lift the
// ceiling; throttling limits the GPU to level. Unknown events are ignored.
func (c *Controller) HandleThermalEvent(ev ThermalEvent, level int) error {
	switch ev {
	case ThermalCold, ThermalNormal:
		return c.SetThermalCeiling(c.limits.levelMax)
	case ThermalThrottling:
		return c.SetThermalCeiling(level)
	default:
		c.logger.Warn("ignoring unknown thermal event", "event", ev)
		return nil
	}
}

// ThermalCeiling returns the most performant level allowed by thermal limits
func (c *Controller) ThermalCeiling() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits.tmuMax
}

// ThermalMaxFreq returns the front-end clock of the thermal ceiling
func (c *Controller) ThermalMaxFreq() uint32 {
	return c.table.At(c.ThermalCeiling()).Clk0
}
