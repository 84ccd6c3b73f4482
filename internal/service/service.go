// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package service defines the lifecycle every long lived component of the
// daemon follows: optional Init, optional background Run and optional Shutdown.
package service

import "context"

// Service is the interface that all services must implement
type Service interface {
	Name() string
}

// Initializer is implemented by services that need setup before running
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services with a background loop. Run blocks until
// ctx is cancelled or the service fails.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that hold resources
type Shutdowner interface {
	Service
	Shutdown() error
}

// ReadyChecker is implemented by services that can report readiness
type ReadyChecker interface {
	Service
	IsReady() bool
}
