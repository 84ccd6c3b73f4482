// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// UIDStats is the busy time record of one application UID. Records are
// created on the first context of a UID and kept for the daemon lifetime so
// that totals survive the application's exit.
type UIDStats struct {
	uid uint32

	// guarded by uidRegistry.mu
	contexts    int
	inFlight    int
	periodStart time.Time
	busy        []time.Duration
}

// UID returns the application UID owning the record
func (s *UIDStats) UID() uint32 {
	return s.uid
}

// uidRegistry tracks per-UID GPU busy time per level. Its lock is the
// innermost lock of the package: it may be taken while holding the DVFS
// lock, never the other way round.
type uidRegistry struct {
	mu      sync.Mutex
	clock   clock.PassiveClock
	nlevels int
	maxUIDs int

	level int
	slots int
	stats []*UIDStats // sorted by uid
}

func newUIDRegistry(clk clock.PassiveClock, nlevels, level, slots, maxUIDs int) *uidRegistry {
	return &uidRegistry{
		clock:   clk,
		nlevels: nlevels,
		maxUIDs: maxUIDs,
		level:   level,
		slots:   slots,
	}
}

func (r *uidRegistry) attach(uid uint32) (*UIDStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, found := slices.BinarySearchFunc(r.stats, uid, func(s *UIDStats, uid uint32) int {
		return cmp.Compare(s.uid, uid)
	})
	if !found {
		if r.maxUIDs > 0 && len(r.stats) >= r.maxUIDs {
			return nil, fmt.Errorf("%w: limit of %d reached, uid %d rejected", ErrTooManyUIDs, r.maxUIDs, uid)
		}
		r.stats = slices.Insert(r.stats, i, &UIDStats{uid: uid, busy: make([]time.Duration, r.nlevels)})
	}

	s := r.stats[i]
	s.contexts++
	return s, nil
}

func (r *uidRegistry) detach(s *UIDStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.contexts > 0 {
		s.contexts--
	}
}

func (r *uidRegistry) checkSlot(slot int) error {
	if slot < 0 || slot >= r.slots {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidSlot, slot, r.slots)
	}
	return nil
}

func (r *uidRegistry) jobStart(s *UIDStats, slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkSlot(slot); err != nil {
		return err
	}
	if s.inFlight == 0 {
		s.periodStart = r.clock.Now()
	}
	s.inFlight++
	return nil
}

func (r *uidRegistry) jobEnd(s *UIDStats, slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkSlot(slot); err != nil {
		return err
	}
	if s.inFlight == 0 {
		return fmt.Errorf("uid %d: job end without a running job", s.uid)
	}

	now := r.clock.Now()
	s.inFlight--
	s.busy[r.level] += now.Sub(s.periodStart)
	if s.inFlight == 0 {
		s.periodStart = time.Time{}
	} else {
		s.periodStart = now
	}
	return nil
}

// levelChanged closes the busy periods of running jobs at the old level and
// reopens them at next.
func (r *uidRegistry) levelChanged(now time.Time, next int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.stats {
		if s.inFlight == 0 {
			continue
		}
		s.busy[r.level] += now.Sub(s.periodStart)
		s.periodStart = now
	}
	r.level = next
}

// UIDResidency is the busy time of one UID at each level
type UIDResidency struct {
	UID      uint32
	Contexts int
	Busy     []time.Duration
}

func (r *uidRegistry) snapshot() []UIDResidency {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]UIDResidency, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, UIDResidency{
			UID:      s.uid,
			Contexts: s.contexts,
			Busy:     slices.Clone(s.busy),
		})
	}
	return out
}
