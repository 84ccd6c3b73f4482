// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/oklog/run"
)

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// Init initializes services in order. When one fails, the services already
// initialized are shut down in reverse order and the failure is returned.
func Init(logger *slog.Logger, services []Service) error {
	logger = orDefault(logger)

	done := make([]Service, 0, len(services))
	for _, s := range services {
		in, ok := s.(Initializer)
		if !ok {
			logger.Debug("service has no init step", "service", s.Name())
			continue
		}

		logger.Info("Initializing service", "service", s.Name())
		if err := in.Init(); err != nil {
			shutdownAll(logger, done)
			return fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
		}
		done = append(done, s)
	}
	return nil
}

func shutdownAll(logger *slog.Logger, services []Service) {
	if len(services) == 0 {
		return
	}
	logger.Info("Shutting down initialized services")
	for _, s := range slices.Backward(services) {
		shutdown(logger, s)
	}
}

func shutdown(logger *slog.Logger, s Service) {
	sd, ok := s.(Shutdowner)
	if !ok {
		return
	}
	if err := sd.Shutdown(); err != nil {
		logger.Error("failed to shutdown service", "service", s.Name(), "error", err)
		return
	}
	logger.Debug("service shut down", "service", s.Name())
}

// Run runs every Runner in its own goroutine. The first one to return
// cancels the others; each service is shut down as its runner is interrupted.
// Services without a run loop are shut down last, in reverse order.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	logger = orDefault(logger)
	logger.Info("Running all services")

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var (
		g       run.Group
		passive []Service
	)
	for _, s := range services {
		r, ok := s.(Runner)
		if !ok {
			logger.Debug("service has no run loop", "service", s.Name())
			passive = append(passive, s)
			continue
		}

		g.Add(
			func() error {
				logger.Info("Running service", "service", s.Name())
				return r.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", s.Name(), "reason", err)
				}
				shutdown(logger, s)
			},
		)
	}

	err := g.Run()
	shutdownAll(logger, passive)
	return err
}
