// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Level selects the metric groups exported by the prometheus exporter
type Level uint32

const (
	MetricsLevelDVFS  Level = 1 << iota // 1: current level, bounds, residency
	MetricsLevelPower                   // 2: power on/off residency
	MetricsLevelUID                     // 4: per application residency

	MetricsLevelAll = MetricsLevelDVFS | MetricsLevelPower | MetricsLevelUID
)

var levelNames = []struct {
	name  string
	level Level
}{
	{"dvfs", MetricsLevelDVFS},
	{"power", MetricsLevelPower},
	{"uid", MetricsLevelUID},
}

func (l Level) names() []string {
	var out []string
	for _, n := range levelNames {
		if l&n.level != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// String returns the comma separated names of the enabled groups
func (l Level) String() string {
	return strings.Join(l.names(), ",")
}

func (l Level) IsDVFSEnabled() bool {
	return l&MetricsLevelDVFS != 0
}

func (l Level) IsPowerEnabled() bool {
	return l&MetricsLevelPower != 0
}

func (l Level) IsUIDEnabled() bool {
	return l&MetricsLevelUID != 0
}

// ParseLevel parses group names into a Level; an empty list selects all groups
func ParseLevel(levels []string) (Level, error) {
	if len(levels) == 0 {
		return MetricsLevelAll, nil
	}

	var result Level
next:
	for _, level := range levels {
		name := strings.ToLower(strings.TrimSpace(level))
		for _, n := range levelNames {
			if n.name == name {
				result |= n.level
				continue next
			}
		}
		return 0, fmt.Errorf("unknown metrics level: %s", level)
	}
	return result, nil
}

// ValidLevels returns the list of valid metrics levels
func ValidLevels() []string {
	out := make([]string, 0, len(levelNames))
	for _, n := range levelNames {
		out = append(out, n.name)
	}
	return out
}

// MarshalYAML emits a single name or a list of names
func (l Level) MarshalYAML() (any, error) {
	names := l.names()
	if len(names) == 1 {
		return names[0], nil
	}
	return names, nil
}

// UnmarshalYAML accepts either a single name or a list of names
func (l *Level) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		parsed, err := ParseLevel([]string{single})
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}

	var multiple []string
	if err := unmarshal(&multiple); err == nil {
		parsed, err := ParseLevel(multiple)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}

	return fmt.Errorf("cannot unmarshal metrics level: must be a string or array of strings")
}
