// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

// limits holds the level bounds applied to every governor recommendation.
// Lower indices are more performant, so a "max" bound is a lower index
// than the matching "min" bound.
type limits struct {
	levelMax, levelMin int // table extremes: 0 and N-1

	scalingMax, scalingMin int // user bounds
	tmuMax                 int // thermal ceiling
}

func newLimits(n int) limits {
	return limits{
		levelMax:   0,
		levelMin:   n - 1,
		scalingMax: 0,
		scalingMin: n - 1,
		tmuMax:     0,
	}
}

// heal resets inverted user bounds to the full table range and reports
// whether it had to.
func (l *limits) heal() bool {
	if l.scalingMax <= l.scalingMin {
		return false
	}
	l.scalingMax, l.scalingMin = l.levelMax, l.levelMin
	return true
}

// ceiling is the most performant level currently allowed
func (l limits) ceiling() int {
	return max(l.scalingMax, l.tmuMax)
}

// floor is the least performant level currently allowed. The thermal
// ceiling wins over the user's scaling minimum.
func (l limits) floor() int {
	return max(l.scalingMin, l.ceiling())
}

func (l limits) clamp(level int) int {
	return min(max(level, l.ceiling()), l.floor())
}

// target moves the current level into the allowed window. A level already
// inside keeps the pending target, itself pulled inside the window.
func (l limits) target(level, pending int) int {
	if level < l.ceiling() || level > l.floor() {
		return l.clamp(level)
	}
	return l.clamp(pending)
}
