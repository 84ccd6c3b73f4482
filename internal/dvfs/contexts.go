// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

// ContextCreated is called when an application with uid opens a GPU
// context. The returned record is passed to the job and context callbacks.
func (c *Controller) ContextCreated(uid uint32) (*UIDStats, error) {
	return c.uids.attach(uid)
}

// ContextDestroyed is called when a context of the record's UID is closed.
// The record itself is kept.
func (c *Controller) ContextDestroyed(s *UIDStats) {
	c.uids.detach(s)
}

// JobStarted is called when a job of the record's UID starts on slot
func (c *Controller) JobStarted(s *UIDStats, slot int) error {
	return c.uids.jobStart(s, slot)
}

// JobEnded is called when a job of the record's UID leaves slot
func (c *Controller) JobEnded(s *UIDStats, slot int) error {
	return c.uids.jobEnd(s, slot)
}
