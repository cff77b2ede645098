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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, int32(5), cfg.Worker.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Worker.Interval)
	assert.Equal(t, time.Minute, cfg.Worker.Backoff.Base)
	assert.Equal(t, time.Hour, cfg.Worker.Backoff.Max)
	assert.Equal(t, int32(3), cfg.Worker.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Worker.StuckAfter)
	assert.Equal(t, 30*time.Second, cfg.Delivery.CMSTimeout)
	assert.Equal(t, 10*time.Second, cfg.Delivery.WebhookTimeout)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, 30*24*time.Hour, cfg.Sweeper.DeliveryLogRetention)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PUBLISHRUNNER_API_WORKER_SECRET", "s3cret")
	t.Setenv("PUBLISHRUNNER_WORKER_BATCH_SIZE", "20")
	t.Setenv("PUBLISHRUNNER_WORKER_BACKOFF_BASE", "30s")
	t.Setenv("PUBLISHRUNNER_WORKER_STUCK_AFTER", "5m")
	t.Setenv("PUBLISHRUNNER_EVENTS_ENABLED", "true")
	t.Setenv("PUBLISHRUNNER_EVENTS_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("PUBLISHRUNNER_SWEEPER_DELIVERY_LOG_RETENTION", "168h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.API.WorkerSecret)
	assert.Equal(t, int32(20), cfg.Worker.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Worker.Backoff.Base)
	assert.Equal(t, time.Hour, cfg.Worker.Backoff.Max)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Events.Brokers)

	sw := cfg.SweeperSettings()
	assert.Equal(t, 5*time.Minute, sw.StuckAfter)
	assert.Equal(t, 7*24*time.Hour, sw.DeliveryLogRetention)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	contents := `api:
  listen_addr: ":9000"
  jwks_url: https://auth.example.com/.well-known/jwks.json
delivery:
  user_agent: custom-agent/2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600))
	t.Setenv("PUBLISHRUNNER_API_LISTEN_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.API.ListenAddr, "environment wins over the file")
	assert.Equal(t, "https://auth.example.com/.well-known/jwks.json", cfg.API.JWKSURL)
	assert.Equal(t, "custom-agent/2", cfg.Delivery.UserAgent)
	assert.Equal(t, 10*time.Second, cfg.Delivery.WebhookTimeout)
}
