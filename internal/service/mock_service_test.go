// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
)

// recorder collects lifecycle calls across services in call order
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeService struct {
	name string
	rec  *recorder

	initErr     error
	shutdownErr error
	runFn       func(ctx context.Context) error
}

func (f *fakeService) Name() string { return f.name }

// plain has only a name
type plain struct{ *fakeService }

// initOnly implements Initializer
type initOnly struct{ *fakeService }

func (s initOnly) Init() error {
	s.rec.add("init:" + s.name)
	return s.initErr
}

// full implements Initializer, Runner and Shutdowner
type full struct{ *fakeService }

func (s full) Init() error {
	s.rec.add("init:" + s.name)
	return s.initErr
}

func (s full) Run(ctx context.Context) error {
	s.rec.add("run:" + s.name)
	if s.runFn != nil {
		return s.runFn(ctx)
	}
	<-ctx.Done()
	return nil
}

func (s full) Shutdown() error {
	s.rec.add("shutdown:" + s.name)
	return s.shutdownErr
}

// closer implements Shutdowner without a run loop
type closer struct{ *fakeService }

func (s closer) Shutdown() error {
	s.rec.add("shutdown:" + s.name)
	return s.shutdownErr
}
