// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/sustainable-computing-io/gpufreq/internal/dvfs"
)

// curFreq reports the target level: the clocks the GPU runs at once powered
func (a *Attributes) curFreq(w io.Writer) {
	fmt.Fprintf(w, "%d\n", a.dvfs.CurFreq())
}

func (a *Attributes) availableFrequencies(w io.Writer) {
	freqs := a.dvfs.AvailableFrequencies()
	parts := make([]string, 0, len(freqs))
	for _, f := range freqs {
		parts = append(parts, strconv.FormatUint(uint64(f), 10))
	}
	fmt.Fprintf(w, "%s\n", strings.Join(parts, " "))
}

func (a *Attributes) timeInState(w io.Writer) {
	for _, lt := range a.dvfs.TimeInState() {
		fmt.Fprintf(w, "%8d %9d\n", lt.Freq, lt.Time.Milliseconds())
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func writeResidency(w io.Writer, name string, r dvfs.Residency) {
	fmt.Fprintf(w, "%s:\n\ttotal_time = %d\n\tcount = %d\n\tlast_entry_time = %d\n",
		name, r.Time.Milliseconds(), r.Entries, unixMilli(r.LastEntry))
}

func (a *Attributes) powerStats(w io.Writer) {
	s := a.dvfs.Snapshot()
	t := a.dvfs.Table()

	fmt.Fprintln(w, "DVFS stats: (times in ms)")
	for i, r := range s.Ledger.Levels {
		writeResidency(w, strconv.FormatUint(uint64(t.At(i).Clk0), 10), r)
	}
	fmt.Fprintln(w, "Summary stats: (times in ms)")
	writeResidency(w, "ON", s.Ledger.PowerOn)
	writeResidency(w, "OFF", s.Ledger.PowerOff)
}

// uidTimeInState prints a header of frequencies then one line of busy
// times per UID
func (a *Attributes) uidTimeInState(w io.Writer) {
	fmt.Fprint(w, "uid:")
	for _, f := range a.dvfs.AvailableFrequencies() {
		fmt.Fprintf(w, " %d", f)
	}
	fmt.Fprintln(w)

	for _, u := range a.dvfs.UIDTimeInState() {
		fmt.Fprintf(w, "%d:", u.UID)
		for _, busy := range u.Busy {
			fmt.Fprintf(w, " %d", busy.Milliseconds())
		}
		fmt.Fprintln(w)
	}
}

func cpu2Limit(kHz int) string {
	if kHz == dvfs.CPUFreqMax {
		return "none"
	}
	return strconv.Itoa(kHz)
}

func (a *Attributes) table(w io.Writer) {
	t := a.dvfs.Table()
	rows := make([][]string, 0, t.Len())
	for i := range t.Len() {
		opp := t.At(i)
		rows = append(rows, []string{
			strconv.FormatUint(uint64(opp.Clk0), 10),
			strconv.FormatUint(uint64(opp.Vol0), 10),
			strconv.FormatUint(uint64(opp.Clk1), 10),
			strconv.FormatUint(uint64(opp.Vol1), 10),
			strconv.Itoa(opp.UtilMin),
			strconv.Itoa(opp.UtilMax),
			strconv.Itoa(opp.Hysteresis),
			strconv.Itoa(opp.QOS.INTMin),
			strconv.Itoa(opp.QOS.MIFMin),
			strconv.Itoa(opp.QOS.CPU0Min),
			strconv.Itoa(opp.QOS.CPU1Min),
			cpu2Limit(opp.QOS.CPU2Max),
		})
	}

	table := tablewriter.NewWriter(w)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{
		"gpu0 clk", "gpu0 vol", "gpu1 clk", "gpu1 vol", "util min", "util max", "hysteresis",
		"int min", "mif min", "cpu0 min", "cpu1 min", "cpu2 limit",
	})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (a *Attributes) clockInfo(w io.Writer) {
	s := a.dvfs.Snapshot()
	t := a.dvfs.Table()
	target := t.At(s.Target)

	fmt.Fprintf(w, "Power status             : %s\n", onOff(s.Powered))
	fmt.Fprintf(w, "gpu0 clock (top level)   : %d kHz\n", target.Clk0)
	fmt.Fprintf(w, "gpu1 clock (shaders)     : %d kHz\n", target.Clk1)
	rate0, rate1 := a.dvfs.ClockInfo()
	fmt.Fprintf(w, "gpu0 programmed clock    : %d kHz\n", rate0)
	fmt.Fprintf(w, "gpu1 programmed clock    : %d kHz\n", rate1)
	fmt.Fprintf(w, "GPU Bus Traffic Shaping  : %s\n", onOff(s.BTSEnabled))
	fmt.Fprintf(w, "QOS status               : %s\n", onOff(s.QOSEnabled))
	fmt.Fprintf(w, " INT min clock           : %d kHz\n", target.QOS.INTMin)
	fmt.Fprintf(w, " MIF min clock           : %d kHz\n", target.QOS.MIFMin)
	fmt.Fprintf(w, " CPU cluster 0 min clock : %d kHz\n", target.QOS.CPU0Min)
	fmt.Fprintf(w, " CPU cluster 1 min clock : %d kHz\n", target.QOS.CPU1Min)
	if target.QOS.CPU2Max == dvfs.CPUFreqMax {
		fmt.Fprintln(w, " CPU cluster 2 max clock : (no limit)")
	} else {
		fmt.Fprintf(w, " CPU cluster 2 max clock : %d kHz\n", target.QOS.CPU2Max)
	}

	limit := t.At(s.ThermalMax)
	fmt.Fprintln(w, "Thermal level limit:")
	fmt.Fprintf(w, " gpu0 clock (top level)   : %d kHz\n", limit.Clk0)
	fmt.Fprintf(w, " gpu1 clock (shaders)     : %d kHz\n", limit.Clk1)
}
