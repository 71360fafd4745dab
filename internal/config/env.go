package config

import (
	"os"
	"strconv"
)

// FromEnv overlays BGQ_* environment variables onto cfg. Unparseable numbers
// are ignored.
func FromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("BGQ_SITE_ID", &cfg.SiteID)
	str("BGQ_API_KEY", &cfg.APIKey)
	str("BGQ_TRACKING_API_URL", &cfg.TrackingAPIURL)
	str("BGQ_USER_AGENT", &cfg.UserAgent)
	str("BGQ_DATA_DIR", &cfg.DataDir)

	str("BGQ_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("BGQ_STORAGE_FSYNC", &cfg.Storage.Fsync)
	num("BGQ_STORAGE_FSYNC_INTERVAL_MS", &cfg.Storage.FsyncIntervalMs)

	str("BGQ_QUEUE_NAME", &cfg.Queue.Name)
	num("BGQ_QUEUE_MIN_TASKS_TO_RUN", &cfg.Queue.MinTasksToRun)
	num("BGQ_QUEUE_RUN_DELAY_MS", &cfg.Queue.RunDelayMs)
	num("BGQ_QUEUE_RUN_INTERVAL_MS", &cfg.Queue.RunIntervalMs)
	num("BGQ_QUEUE_TASK_EXPIRY_HOURS", &cfg.Queue.TaskExpiryHours)

	num("BGQ_HTTP_TIMEOUT_MS", &cfg.HTTP.TimeoutMs)
	num("BGQ_HTTP_PAUSE_MINUTES", &cfg.HTTP.PauseMinutes)

	num("BGQ_RETRY_BASE_DELAY_MS", &cfg.Retry.BaseDelayMs)
	num("BGQ_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	num("BGQ_RETRY_MAX_DELAY_MS", &cfg.Retry.MaxDelayMs)
	if v := os.Getenv("BGQ_RETRY_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retry.Multiplier = f
		}
	}

	str("BGQ_SERVER_ADDR", &cfg.Server.Addr)
	str("BGQ_LOG_LEVEL", &cfg.Log.Level)
	str("BGQ_LOG_FORMAT", &cfg.Log.Format)
}
