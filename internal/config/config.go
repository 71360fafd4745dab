package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	SiteID         string `json:"site_id" yaml:"site_id"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	TrackingAPIURL string `json:"tracking_api_url" yaml:"tracking_api_url"`
	UserAgent      string `json:"user_agent" yaml:"user_agent"`
	DataDir        string `json:"data_dir" yaml:"data_dir"`

	Storage Storage `json:"storage" yaml:"storage"`
	Queue   Queue   `json:"queue" yaml:"queue"`
	HTTP    HTTP    `json:"http" yaml:"http"`
	Retry   Retry   `json:"retry" yaml:"retry"`
	Server  Server  `json:"server" yaml:"server"`
	Log     Log     `json:"log" yaml:"log"`
}

// Storage selects and tunes the task store backend.
type Storage struct {
	Backend         string `json:"backend" yaml:"backend"`
	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int    `json:"fsync_interval_ms" yaml:"fsync_interval_ms"`
}

// Queue captures run-trigger and expiry settings.
type Queue struct {
	Name            string `json:"name" yaml:"name"`
	MinTasksToRun   int    `json:"min_tasks_to_run" yaml:"min_tasks_to_run"`
	RunDelayMs      int    `json:"run_delay_ms" yaml:"run_delay_ms"`
	RunIntervalMs   int    `json:"run_interval_ms" yaml:"run_interval_ms"`
	TaskExpiryHours int    `json:"task_expiry_hours" yaml:"task_expiry_hours"`
}

// HTTP captures transport timeouts and the circuit pause length.
type HTTP struct {
	TimeoutMs    int `json:"timeout_ms" yaml:"timeout_ms"`
	PauseMinutes int `json:"pause_minutes" yaml:"pause_minutes"`
}

// Retry is the 5xx backoff policy.
type Retry struct {
	BaseDelayMs int     `json:"base_delay_ms" yaml:"base_delay_ms"`
	Multiplier  float64 `json:"multiplier" yaml:"multiplier"`
	MaxAttempts int     `json:"max_attempts" yaml:"max_attempts"`
	MaxDelayMs  int     `json:"max_delay_ms" yaml:"max_delay_ms"`
}

// Server is the admin HTTP listener.
type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Log mirrors log.Config.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

const (
	BackendPebble = "pebble"
	BackendSQLite = "sqlite"
)

// Default returns built-in defaults.
func Default() Config {
	return Config{
		TrackingAPIURL: "https://track-sdk.customer.io",
		UserAgent:      "bgq",
		Storage: Storage{
			Backend:         BackendPebble,
			Fsync:           "always",
			FsyncIntervalMs: 5,
		},
		Queue: Queue{
			Name:            "default",
			MinTasksToRun:   10,
			RunDelayMs:      30_000,
			RunIntervalMs:   60_000,
			TaskExpiryHours: 72,
		},
		HTTP: HTTP{
			TimeoutMs:    30_000,
			PauseMinutes: 5,
		},
		Retry: Retry{
			BaseDelayMs: 100,
			Multiplier:  2,
			MaxAttempts: 6,
		},
		Server: Server{Addr: "127.0.0.1:8080"},
		Log:    Log{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored; with no arguments ".env" is tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendPebble, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be pebble or sqlite, got %q", c.Storage.Backend))
	}
	switch strings.ToLower(c.Storage.Fsync) {
	case "", "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("storage.fsync must be always, interval or never, got %q", c.Storage.Fsync))
	}
	if c.Queue.Name == "" {
		errs = append(errs, errors.New("queue.name is required"))
	}
	if c.Queue.MinTasksToRun < 0 || c.Queue.RunDelayMs < 0 || c.Queue.RunIntervalMs < 0 || c.Queue.TaskExpiryHours < 0 {
		errs = append(errs, errors.New("queue settings must not be negative"))
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.BaseDelayMs < 0 || c.Retry.MaxDelayMs < 0 {
		errs = append(errs, errors.New("retry settings must not be negative"))
	}
	if c.Retry.Multiplier < 0 {
		errs = append(errs, errors.New("retry.multiplier must not be negative"))
	}
	if c.HTTP.TimeoutMs < 0 || c.HTTP.PauseMinutes < 0 {
		errs = append(errs, errors.New("http settings must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// HasCredentials reports whether both the site id and api key are set.
func (c Config) HasCredentials() bool {
	return c.SiteID != "" && c.APIKey != ""
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (q Queue) RunDelay() time.Duration    { return ms(q.RunDelayMs) }
func (q Queue) RunInterval() time.Duration { return ms(q.RunIntervalMs) }
func (q Queue) TaskExpiry() time.Duration  { return time.Duration(q.TaskExpiryHours) * time.Hour }
func (h HTTP) Timeout() time.Duration      { return ms(h.TimeoutMs) }
func (h HTTP) Pause() time.Duration        { return time.Duration(h.PauseMinutes) * time.Minute }
func (r Retry) BaseDelay() time.Duration   { return ms(r.BaseDelayMs) }
func (r Retry) MaxDelay() time.Duration    { return ms(r.MaxDelayMs) }
func (s Storage) FsyncInterval() time.Duration {
	return ms(s.FsyncIntervalMs)
}
