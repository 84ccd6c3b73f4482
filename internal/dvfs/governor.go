// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"fmt"
	"maps"
	"slices"
)

// Governor recommends the next level from the current level and the latest
// utilization sample (0-100). Governors keep private state between calls and
// are only used while holding the DVFS lock. The recommendation is clamped by
// the caller.
type Governor interface {
	Name() string
	Next(level, util int) int
}

type governorFactory func(t *Table, level int) Governor

var governors = map[string]governorFactory{
	"basic":     newBasicGovernor,
	"quickstep": newQuickstepGovernor,
}

// Governors returns the names of the available governors, sorted
func Governors() []string {
	return slices.Sorted(maps.Keys(governors))
}

func newGovernor(name string, t *Table, level int) (Governor, error) {
	factory, ok := governors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrInvalidGovernor, name, Governors())
	}
	return factory(t, level), nil
}

// basicGovernor steps one level up when utilization exceeds the current
// level's band and one level down after the band's hysteresis has been
// exhausted by consecutive low samples.
type basicGovernor struct {
	table *Table
	delay int
}

func newBasicGovernor(t *Table, level int) Governor {
	return &basicGovernor{table: t, delay: t.At(level).Hysteresis}
}

func (g *basicGovernor) Name() string {
	return "basic"
}

func (g *basicGovernor) Next(level, util int) int {
	opp := g.table.At(level)

	switch {
	case level > 0 && util > opp.UtilMax:
		level--
		g.delay = g.table.At(level).Hysteresis

	case level < g.table.Len()-1 && util < opp.UtilMin:
		if g.delay > 0 {
			g.delay--
			break
		}
		level++
		g.delay = g.table.At(level).Hysteresis

	default:
		g.delay = opp.Hysteresis
	}
	return level
}

// quickstepGovernor behaves like basic but jumps two levels up when
// utilization is above the midpoint between util_max and 100.
type quickstepGovernor struct {
	basicGovernor
}

func newQuickstepGovernor(t *Table, level int) Governor {
	return &quickstepGovernor{basicGovernor{table: t, delay: t.At(level).Hysteresis}}
}

func (g *quickstepGovernor) Name() string {
	return "quickstep"
}

func (g *quickstepGovernor) Next(level, util int) int {
	opp := g.table.At(level)
	if level >= 2 && util > (100+opp.UtilMax)/2 {
		level -= 2
		g.delay = g.table.At(level).Hysteresis / 2
		return level
	}
	return g.basicGovernor.Next(level, util)
}
