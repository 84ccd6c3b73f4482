// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import "github.com/sustainable-computing-io/gpufreq/internal/device"

// qosVoter keeps platform QOS votes in step with the GPU level
type qosVoter struct {
	sink device.QOSSink
	// btsLevel is the least performant level with bus traffic shaping on;
	// negative disables shaping.
	btsLevel int

	enabled   bool
	levelLast int
}

func newQOSVoter(sink device.QOSSink, btsLevel int) *qosVoter {
	q := &qosVoter{sink: sink, btsLevel: btsLevel}
	q.reset()
	return q
}

// set votes for level. Repeated votes for the same level are dropped.
func (q *qosVoter) set(level int, vote QOSVote) {
	if q.enabled && q.levelLast == level {
		return
	}

	q.sink.Update(device.QOSINTMin, vote.INTMin)
	q.sink.Update(device.QOSMIFMin, vote.MIFMin)
	q.sink.Update(device.QOSCPU0Min, vote.CPU0Min)
	q.sink.Update(device.QOSCPU1Min, vote.CPU1Min)
	q.sink.Update(device.QOSCPU2Max, vote.CPU2Max)
	q.sink.SetBTS(q.btsLevel >= 0 && level <= q.btsLevel)

	q.levelLast = level
	q.enabled = true
}

// reset withdraws every vote
func (q *qosVoter) reset() {
	q.sink.Update(device.QOSINTMin, 0)
	q.sink.Update(device.QOSMIFMin, 0)
	q.sink.Update(device.QOSCPU0Min, 0)
	q.sink.Update(device.QOSCPU1Min, 0)
	q.sink.Update(device.QOSCPU2Max, CPUFreqMax)
	q.sink.SetBTS(false)

	q.levelLast = -1
	q.enabled = false
}

// shaping reports whether bus traffic shaping is currently requested
func (q *qosVoter) shaping() bool {
	return q.enabled && q.btsLevel >= 0 && q.levelLast <= q.btsLevel
}
