// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

// ReportUtilization stores the latest utilization sample (0-100) and
// schedules an evaluation. It never blocks; reports arriving while an
// evaluation is pending are folded into it and only the latest sample is used.
func (c *Controller) ReportUtilization(util int) {
	c.util.Store(int32(min(max(util, 0), 100)))
	c.kick()
}

// evaluate runs the active governor on the latest sample and moves the GPU
// to the recommended level.
func (c *Controller) evaluate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.gate.PoweredOn() {
		return
	}

	util := int(c.util.Load())
	c.levelTarget = c.limits.clamp(c.governor.Next(c.level, util))

	switch {
	case c.levelTarget != c.level:
		c.setLevelLocked(c.levelTarget)
	case !c.qos.enabled:
		// votes were withdrawn by a clock down; restore them for the current level
		c.qos.set(c.level, c.table.At(c.level).QOS)
	}
}
