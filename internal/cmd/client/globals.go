package client

import (
	"context"

	cfgpkg "github.com/rzbill/bgq/internal/config"
	"github.com/rzbill/bgq/internal/runtime"
	logpkg "github.com/rzbill/bgq/pkg/log"
)

// Globals holds the persistent flags shared by every command.
type Globals struct {
	ConfigPath string
	DataDir    string
	LogLevel   string
	LogFormat  string
	EnvFile    string
}

// LoadConfig resolves configuration in order: defaults, config file, .env and
// BGQ_* variables, then flags.
func (g *Globals) LoadConfig() (cfgpkg.Config, error) {
	if err := cfgpkg.LoadDotEnv(g.EnvFile); err != nil {
		return cfgpkg.Config{}, err
	}
	cfg, err := cfgpkg.Load(g.ConfigPath)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if g.DataDir != "" {
		cfg.DataDir = g.DataDir
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	return cfg, cfg.Validate()
}

// NewLogger builds the process logger and routes stdlib logging through it.
func NewLogger(cfg cfgpkg.Config) (logpkg.Logger, error) {
	logger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Redact: []string{"api_key", "authorization"},
	})
	if err != nil {
		return nil, err
	}
	logpkg.RedirectStdLog(logger)
	return logger, nil
}

// openRuntime loads config and opens a runtime with add-time runs disabled;
// one-shot commands run passes explicitly.
func (g *Globals) openRuntime(ctx context.Context) (*runtime.Runtime, error) {
	cfg, err := g.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger, DisableAutoRun: true})
}
