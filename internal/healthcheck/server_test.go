// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("HEALTH_CHECK_PORT", "")
	assert.Equal(t, 8090, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "9191")
	assert.Equal(t, 9191, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "99999")
	assert.Equal(t, 8090, GetConfigFromEnv().Port)
}

func get(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHandlerEndpoints(t *testing.T) {
	s := NewServer(Config{})
	h := s.Handler()

	code, resp := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "starting", resp.Status)

	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)

	s.SetStatus(StatusHealthy)
	code, _ = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	s.SetStatus(StatusUnhealthy)
	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyzRunsChecks(t *testing.T) {
	s := NewServer(Config{})
	s.SetStatus(StatusHealthy)

	dbErr := errors.New("connection refused")
	var failing bool
	s.AddCheck("pubdb", func(context.Context) error {
		if failing {
			return dbErr
		}
		return nil
	})

	code, resp := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"pubdb": "ok"}, resp.Checks)

	failing = true
	code, resp = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", resp.Checks["pubdb"])
}

func TestReadyRequiresHealthy(t *testing.T) {
	s := NewServer(Config{})
	ready, _ := s.Ready(context.Background())
	assert.False(t, ready)

	s.SetStatus(StatusHealthy)
	ready, _ = s.Ready(context.Background())
	assert.True(t, ready)
}
