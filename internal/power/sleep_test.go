// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sustainable-computing-io/gpufreq/internal/device"
)

func TestSleepListener(t *testing.T) {
	gpu := device.NewFakePowerDomain("gpu", false)
	pc := NewController(gpu, nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	assert.NoError(t, pc.Init())
	pc.PowerOn()

	l := NewSleepListener(pc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "sleep-listener", l.Name())

	sigs := make(chan chan<- os.Signal, 1)
	l.notify = func(c chan<- os.Signal, _ ...os.Signal) { sigs <- c }
	l.stop = func(chan<- os.Signal) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	c := <-sigs
	c <- syscall.SIGUSR1
	assert.Eventually(t, func() bool { return pc.State() == StateSuspended }, time.Second, time.Millisecond)
	on, _ := gpu.IsOn()
	assert.False(t, on)

	c <- syscall.SIGUSR2
	assert.Eventually(t, func() bool { return pc.State() == StateOff }, time.Second, time.Millisecond)
	assert.True(t, pc.PowerOn(), "state lost across suspend")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
