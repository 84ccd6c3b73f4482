// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// delayedTask runs fn once after a delay unless cancelled first. Scheduling
// while a run is pending is a no-op.
type delayedTask struct {
	clock clock.Clock
	fn    func()

	mu      sync.Mutex
	pending chan struct{} // nil when idle; closed to cancel
}

func newDelayedTask(clk clock.Clock, fn func()) *delayedTask {
	return &delayedTask{clock: clk, fn: fn}
}

// schedule arms the task and reports whether it was idle
func (t *delayedTask) schedule(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		return false
	}

	cancelled := make(chan struct{})
	t.pending = cancelled
	timer := t.clock.NewTimer(d)

	go func() {
		select {
		case <-timer.C():
			t.mu.Lock()
			if t.pending != cancelled {
				// cancelled while the timer fired
				t.mu.Unlock()
				return
			}
			t.pending = nil
			t.mu.Unlock()
			t.fn()

		case <-cancelled:
			timer.Stop()
		}
	}()
	return true
}

// cancel disarms the task and reports whether a run was pending
func (t *delayedTask) cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return false
	}
	close(t.pending)
	t.pending = nil
	return true
}

func (t *delayedTask) isPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
