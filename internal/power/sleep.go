// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

// Sleeper receives system sleep notifications
type Sleeper interface {
	Suspend()
	Resume()
}

// SleepListener turns SIGUSR1 into a system suspend notification and SIGUSR2
// into a resume, standing in for the platform's PM notifier.
type SleepListener struct {
	logger  *slog.Logger
	sleeper Sleeper
	suspend os.Signal
	resume  os.Signal

	// notify is replaced in tests
	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
}

var _ service.Runner = (*SleepListener)(nil)

func NewSleepListener(s Sleeper, logger *slog.Logger) *SleepListener {
	return &SleepListener{
		logger:  logger.With("service", "sleep-listener"),
		sleeper: s,
		suspend: syscall.SIGUSR1,
		resume:  syscall.SIGUSR2,
		notify:  signal.Notify,
		stop:    signal.Stop,
	}
}

func (l *SleepListener) Name() string {
	return "sleep-listener"
}

func (l *SleepListener) Run(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	l.notify(c, l.suspend, l.resume)
	defer l.stop(c)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-c:
			switch sig {
			case l.suspend:
				l.logger.Info("System suspend")
				l.sleeper.Suspend()
			case l.resume:
				l.logger.Info("System resume")
				l.sleeper.Resume()
			}
		}
	}
}
