// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Run("all services initialize", func(t *testing.T) {
		rec := &recorder{}
		services := []Service{
			full{&fakeService{name: "a", rec: rec}},
			initOnly{&fakeService{name: "b", rec: rec}},
			plain{&fakeService{name: "c", rec: rec}},
		}
		require.NoError(t, Init(nil, services))
		assert.Equal(t, []string{"init:a", "init:b"}, rec.list())
	})

	t.Run("failure shuts down initialized services in reverse", func(t *testing.T) {
		rec := &recorder{}
		initErr := errors.New("no clocks")
		services := []Service{
			full{&fakeService{name: "a", rec: rec}},
			full{&fakeService{name: "b", rec: rec}},
			full{&fakeService{name: "c", rec: rec, initErr: initErr}},
			full{&fakeService{name: "d", rec: rec}},
		}
		err := Init(nil, services)
		assert.ErrorIs(t, err, initErr)
		assert.ErrorContains(t, err, "failed to initialize service c")
		assert.Equal(t, []string{"init:a", "init:b", "init:c", "shutdown:b", "shutdown:a"}, rec.list())
	})

	t.Run("shutdown error does not mask init error", func(t *testing.T) {
		rec := &recorder{}
		initErr := errors.New("init error")
		shutdownErr := errors.New("shutdown error")
		services := []Service{
			full{&fakeService{name: "a", rec: rec, shutdownErr: shutdownErr}},
			initOnly{&fakeService{name: "b", rec: rec, initErr: initErr}},
		}
		err := Init(nil, services)
		assert.ErrorIs(t, err, initErr)
		assert.NotErrorIs(t, err, shutdownErr)
	})

	t.Run("empty", func(t *testing.T) {
		assert.NoError(t, Init(nil, nil))
	})
}

func TestRun(t *testing.T) {
	t.Run("cancel stops and shuts down all runners", func(t *testing.T) {
		rec := &recorder{}
		services := []Service{
			full{&fakeService{name: "a", rec: rec}},
			full{&fakeService{name: "b", rec: rec}},
			plain{&fakeService{name: "c", rec: rec}},
		}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- Run(ctx, nil, services) }()

		assert.Eventually(t, func() bool { return len(rec.list()) == 2 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
		assert.ElementsMatch(t, []string{"run:a", "run:b", "shutdown:a", "shutdown:b"}, rec.list())
	})

	t.Run("failing runner ends the group", func(t *testing.T) {
		rec := &recorder{}
		runErr := errors.New("worker crashed")
		services := []Service{
			full{&fakeService{name: "a", rec: rec, runFn: func(context.Context) error { return runErr }}},
			full{&fakeService{name: "b", rec: rec}},
		}

		err := Run(context.Background(), nil, services)
		assert.ErrorIs(t, err, runErr)
		assert.Contains(t, rec.list(), "shutdown:a")
		assert.Contains(t, rec.list(), "shutdown:b")
	})
}

func TestRunShutsDownPassiveServices(t *testing.T) {
	rec := &recorder{}
	services := []Service{
		closer{&fakeService{name: "a", rec: rec}},
		full{&fakeService{name: "b", rec: rec, runFn: func(context.Context) error { return nil }}},
		closer{&fakeService{name: "c", rec: rec}},
	}

	require.NoError(t, Run(context.Background(), nil, services))
	assert.Equal(t, []string{"run:b", "shutdown:b", "shutdown:c", "shutdown:a"}, rec.list())
}

func TestSignalHandler(t *testing.T) {
	sh := NewSignalHandler(syscall.SIGUSR1)
	assert.Equal(t, "signal-handler", sh.Name())

	t.Run("context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, sh.Run(ctx), context.Canceled)
	})
}
