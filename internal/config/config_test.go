package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendPebble, cfg.Storage.Backend)
	assert.Equal(t, "default", cfg.Queue.Name)
	assert.Equal(t, 10, cfg.Queue.MinTasksToRun)
	assert.Equal(t, 30*time.Second, cfg.Queue.RunDelay())
	assert.Equal(t, 72*time.Hour, cfg.Queue.TaskExpiry())
	assert.Equal(t, 5*time.Minute, cfg.HTTP.Pause())
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay())
	assert.Equal(t, 6, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.HasCredentials())
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bgq.json")
	data := `{"site_id":"s1","api_key":"k1","queue":{"name":"prod","min_tasks_to_run":3},"storage":{"backend":"sqlite"}}`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "s1", cfg.SiteID)
	assert.True(t, cfg.HasCredentials())
	assert.Equal(t, "prod", cfg.Queue.Name)
	assert.Equal(t, 3, cfg.Queue.MinTasksToRun)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	// untouched keys keep their defaults
	assert.Equal(t, 30_000, cfg.Queue.RunDelayMs)
}

func TestLoadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bgq.yaml")
	data := `
site_id: s2
tracking_api_url: https://track.example
retry:
  base_delay_ms: 250
  multiplier: 1.5
  max_attempts: 3
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "s2", cfg.SiteID)
	assert.Equal(t, "https://track.example", cfg.TrackingAPIURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay())
	assert.InDelta(t, 1.5, cfg.Retry.Multiplier, 0.0001)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(file, []byte("queue: [unclosed"), 0o644))
	_, err = Load(file)
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BGQ_SITE_ID", "env-site")
	t.Setenv("BGQ_STORAGE_BACKEND", "sqlite")
	t.Setenv("BGQ_QUEUE_MIN_TASKS_TO_RUN", "24")
	t.Setenv("BGQ_QUEUE_RUN_DELAY_MS", "not-a-number")
	t.Setenv("BGQ_RETRY_MULTIPLIER", "3")

	cfg := Default()
	FromEnv(&cfg)
	assert.Equal(t, "env-site", cfg.SiteID)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 24, cfg.Queue.MinTasksToRun)
	assert.Equal(t, 30_000, cfg.Queue.RunDelayMs)
	assert.InDelta(t, 3.0, cfg.Retry.Multiplier, 0.0001)
}

func TestLoadDotEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("BGQ_API_KEY=from-dotenv\nBGQ_SITE_ID=dotenv-site\n"), 0o644))
	t.Setenv("BGQ_SITE_ID", "already-set")
	t.Setenv("BGQ_API_KEY", "")
	os.Unsetenv("BGQ_API_KEY")

	require.NoError(t, LoadDotEnv(file, filepath.Join(t.TempDir(), "absent.env")))
	t.Cleanup(func() { os.Unsetenv("BGQ_API_KEY") })

	cfg := Default()
	FromEnv(&cfg)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
	assert.Equal(t, "already-set", cfg.SiteID)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "bolt"
	cfg.Storage.Fsync = "sometimes"
	cfg.Queue.Name = ""
	cfg.Retry.MaxAttempts = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
	assert.Contains(t, err.Error(), "storage.fsync")
	assert.Contains(t, err.Error(), "queue.name")
	assert.Contains(t, err.Error(), "retry")
}
