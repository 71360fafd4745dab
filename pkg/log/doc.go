// Package log provides bgq's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records flow through a log/slog handler
// that hands them to a Formatter and then to every configured Output, so the
// facade interoperates with slog while keeping one output format across the
// codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("queue"), log.Str("queue", "default"))
//	l.Info("pass finished", log.Int("attempted", 3))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level + text/json
// format). RedirectStdLog routes the standard library logger, which Pebble
// uses for its own messages, through a Logger.
package log
