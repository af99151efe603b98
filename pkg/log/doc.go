// Package log provides flocheck's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by the standard
// library's slog via a bridge handler that feeds our own formatter and
// outputs, so output stays consistent across the harness whichever
// component emits it.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("publisher"), log.Str("topic", "orders"))
//	l.Info("published", log.Int("id", 7))
//
// # Configuration
//
// ApplyConfig builds a console logger from a declarative Config with text or
// JSON formatting. Console output sends warnings and errors to stderr.
//
// # Interop
//
// RedirectStdLog routes the standard library logger through a Logger, and a
// Logger satisfies Pebble's Infof/Errorf/Fatalf logger interface directly.
package log
