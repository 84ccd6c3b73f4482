// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package dvfs

import "errors"

var (
	// ErrConfig reports a table or platform description that cannot be used
	ErrConfig = errors.New("invalid dvfs configuration")

	ErrInvalidGovernor  = errors.New("invalid governor")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidLevel     = errors.New("invalid level")

	ErrTooManyUIDs = errors.New("too many UIDs")
	ErrInvalidSlot = errors.New("invalid job slot")
)
