// Package log provides Verbatim's structured logging facade.
//
// The package exposes a small Logger interface with leveled, Field-based
// methods. Internally it is backed by the standard library slog through a
// bridge handler that feeds a formatter/output pipeline, so output stays
// consistent across the codebase while remaining interoperable with the
// slog ecosystem.
//
// Quick start:
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("ingest"), log.Str("session", id))
//	l.Info("batch flushed", log.Int("items", n))
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// text/json format), and RedirectStdLog to capture standard library logs
// (Pebble writes through the stdlib logger).
package log
