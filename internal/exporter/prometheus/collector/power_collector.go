// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/gpufreq/internal/power"
)

// PowerStatsProvider is implemented by the power controller
type PowerStatsProvider interface {
	Stats() power.Stats
}

// PowerCollector exports the power state machine and its transition counters
type PowerCollector struct {
	pm PowerStatsProvider

	state        *prom.Desc
	transitions  *prom.Desc
	domainErrors *prom.Desc
}

func NewPowerCollector(pm PowerStatsProvider) *PowerCollector {
	return &PowerCollector{
		pm:           pm,
		state:        newDesc("power", "controller_state", "Power controller state; 1 for the current state", "state"),
		transitions:  newDesc("power", "transitions_total", "Power transitions that changed the hardware state", "transition"),
		domainErrors: newDesc("power", "domain_errors_total", "Power domain requests that failed"),
	}
}

func (c *PowerCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.state
	ch <- c.transitions
	ch <- c.domainErrors
}

func (c *PowerCollector) Collect(ch chan<- prom.Metric) {
	st := c.pm.Stats()

	for _, s := range []power.State{power.StateOff, power.StateOn, power.StateSuspended} {
		v := 0.0
		if st.State == s {
			v = 1
		}
		ch <- prom.MustNewConstMetric(c.state, prom.GaugeValue, v, s.String())
	}
	ch <- prom.MustNewConstMetric(c.transitions, prom.CounterValue, float64(st.PowerOns), "power_on")
	ch <- prom.MustNewConstMetric(c.transitions, prom.CounterValue, float64(st.PowerOffs), "power_off")
	ch <- prom.MustNewConstMetric(c.transitions, prom.CounterValue, float64(st.Suspends), "suspend")
	ch <- prom.MustNewConstMetric(c.domainErrors, prom.CounterValue, float64(st.DomainErrors))
}
