// Package config loads bgq configuration. Default() is the baseline; Load
// overlays a JSON or YAML file; FromEnv overlays BGQ_* variables, optionally
// seeded from a .env file by LoadDotEnv.
//
// Example:
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load("/etc/bgq.yaml")
//	if err != nil { ... }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { ... }
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg})
package config
