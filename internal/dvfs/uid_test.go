// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUIDBusyAcrossLevelChange(t *testing.T) {
	env := newTestController(t)
	env.forceLevel(0)
	c := env.ctrl

	s, err := c.ContextCreated(10042)
	require.NoError(t, err)

	require.NoError(t, c.JobStarted(s, 0))
	env.clock.Step(10 * time.Millisecond)
	require.NoError(t, c.JobEnded(s, 0))

	env.forceLevel(1)

	require.NoError(t, c.JobStarted(s, 1))
	env.clock.Step(5 * time.Millisecond)
	require.NoError(t, c.JobEnded(s, 1))

	uids := c.UIDTimeInState()
	require.Len(t, uids, 1)
	assert.Equal(t, uint32(10042), uids[0].UID)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 5 * time.Millisecond, 0}, uids[0].Busy)
}

func TestUIDJobSpanningLevelChange(t *testing.T) {
	env := newTestController(t)
	env.forceLevel(0)
	c := env.ctrl

	s, err := c.ContextCreated(7)
	require.NoError(t, err)
	require.NoError(t, c.JobStarted(s, 2))

	env.clock.Step(10 * time.Millisecond)
	env.forceLevel(1)
	env.clock.Step(5 * time.Millisecond)
	require.NoError(t, c.JobEnded(s, 2))

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 5 * time.Millisecond, 0}, c.UIDTimeInState()[0].Busy)
}

func TestUIDsQueuedOnOneSlotSplitAtLevelChange(t *testing.T) {
	env := newTestController(t)
	env.forceLevel(0)
	c := env.ctrl

	a, err := c.ContextCreated(100)
	require.NoError(t, err)
	b, err := c.ContextCreated(200)
	require.NoError(t, err)

	// b is queued behind a on the same slot
	require.NoError(t, c.JobStarted(a, 0))
	require.NoError(t, c.JobStarted(b, 0))
	env.clock.Step(10 * time.Millisecond)
	env.forceLevel(1)
	env.clock.Step(5 * time.Millisecond)
	require.NoError(t, c.JobEnded(a, 0))
	require.NoError(t, c.JobEnded(b, 0))

	uids := c.UIDTimeInState()
	require.Len(t, uids, 2)
	want := []time.Duration{10 * time.Millisecond, 5 * time.Millisecond, 0}
	assert.Equal(t, uint32(100), uids[0].UID)
	assert.Equal(t, want, uids[0].Busy)
	assert.Equal(t, uint32(200), uids[1].UID)
	assert.Equal(t, want, uids[1].Busy)
}

func TestUIDOverlappingJobsChargedOnce(t *testing.T) {
	env := newTestController(t)
	c := env.ctrl
	start := env.clock.Now()

	s, err := c.ContextCreated(1)
	require.NoError(t, err)

	require.NoError(t, c.JobStarted(s, 0))
	env.clock.Step(2 * time.Millisecond)
	require.NoError(t, c.JobStarted(s, 1))
	env.clock.Step(3 * time.Millisecond)
	env.forceLevel(2)
	env.clock.Step(4 * time.Millisecond)
	require.NoError(t, c.JobEnded(s, 0))
	env.clock.Step(1 * time.Millisecond)
	require.NoError(t, c.JobEnded(s, 1))

	busy := c.UIDTimeInState()[0].Busy
	var total time.Duration
	for _, d := range busy {
		total += d
	}
	assert.Equal(t, 5*time.Millisecond, busy[1])
	assert.Equal(t, 5*time.Millisecond, busy[2])
	assert.LessOrEqual(t, total, env.clock.Now().Sub(start))
}

func TestUIDRecordsSortedAndKept(t *testing.T) {
	env := newTestController(t)
	c := env.ctrl

	var handles []*UIDStats
	for _, uid := range []uint32{30, 10, 20, 10} {
		s, err := c.ContextCreated(uid)
		require.NoError(t, err)
		handles = append(handles, s)
	}
	assert.Same(t, handles[1], handles[3], "same uid shares one record")

	for _, h := range handles {
		c.ContextDestroyed(h)
	}
	c.ContextDestroyed(handles[0])

	uids := c.UIDTimeInState()
	require.Len(t, uids, 3, "records outlive their contexts")
	for i, want := range []uint32{10, 20, 30} {
		assert.Equal(t, want, uids[i].UID)
		assert.Zero(t, uids[i].Contexts)
	}
}

func TestUIDLimits(t *testing.T) {
	env := newTestController(t, WithMaxUIDs(1))
	c := env.ctrl

	s, err := c.ContextCreated(1)
	require.NoError(t, err)
	_, err = c.ContextCreated(1)
	require.NoError(t, err)

	_, err = c.ContextCreated(2)
	assert.ErrorIs(t, err, ErrTooManyUIDs)

	assert.ErrorIs(t, c.JobStarted(s, 3), ErrInvalidSlot)
	assert.ErrorIs(t, c.JobStarted(s, -1), ErrInvalidSlot)
	assert.ErrorContains(t, c.JobEnded(s, 0), "without a running job")
	assert.Equal(t, uint32(1), s.UID())
}
