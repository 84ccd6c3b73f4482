// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

type serviceStatus struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

type readiness struct {
	Status   string          `json:"status"`
	Services []serviceStatus `json:"services"`
}

// HealthProbe serves /probe/readyz from the services implementing
// service.ReadyChecker
type HealthProbe struct {
	logger   *slog.Logger
	api      APIService
	services []service.Service
}

var _ service.Initializer = (*HealthProbe)(nil)

func NewHealthProbe(api APIService, services []service.Service, logger *slog.Logger) *HealthProbe {
	return &HealthProbe{
		logger:   logger.With("service", "health-probe"),
		api:      api,
		services: services,
	}
}

func (h *HealthProbe) Name() string {
	return "health-probe"
}

func (h *HealthProbe) Init() error {
	return h.api.Register("/probe/readyz", "Readiness", "200 once the DVFS worker and power controller are up",
		http.HandlerFunc(h.handleReadiness))
}

func (h *HealthProbe) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	status := readiness{Status: "ok", Services: []serviceStatus{}}
	code := http.StatusOK

	for _, svc := range h.services {
		rc, ok := svc.(service.ReadyChecker)
		if !ok {
			continue
		}
		ready := rc.IsReady()
		status.Services = append(status.Services, serviceStatus{Name: svc.Name(), Ready: ready})
		if !ready {
			status.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("failed to encode readiness", "error", err)
	}
}
