// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sustainable-computing-io/gpufreq/internal/service"
)

type readySvc struct {
	name  string
	ready bool
}

func (s *readySvc) Name() string  { return s.name }
func (s *readySvc) IsReady() bool { return s.ready }

type plainSvc struct{}

func (plainSvc) Name() string { return "plain" }

func TestReadiness(t *testing.T) {
	dvfs := &readySvc{name: "dvfs"}
	pwr := &readySvc{name: "power", ready: true}

	api := NewAPIServer(WithLogger(discardLogger()))
	probe := NewHealthProbe(api, []service.Service{dvfs, plainSvc{}, pwr}, discardLogger())
	assert.Equal(t, "health-probe", probe.Name())
	require.NoError(t, probe.Init())

	get := func() (int, readiness) {
		rr := httptest.NewRecorder()
		api.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/probe/readyz", nil))
		var r readiness
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &r))
		return rr.Code, r
	}

	code, r := get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", r.Status)
	assert.Equal(t, []serviceStatus{{Name: "dvfs"}, {Name: "power", Ready: true}}, r.Services)

	dvfs.ready = true
	code, r = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", r.Status)
}
