// Package logging provides structured logging using slog.
package logging

import (
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Config holds logging configuration.
type Config struct {
	Format string // "json" | "text"
	Level  string // "debug" | "info" | "warn" | "error"
	File   string // optional log file; receives JSON regardless of Format
}

// Setup initializes the global slog logger based on configuration.
// When a log file is configured, log records fan out to both the console
// handler and a JSON file handler. The returned cleanup closes the file.
func Setup(cfg Config) func() error {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var console slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, opts)
	default:
		console = slog.NewTextHandler(os.Stdout, opts)
	}

	if cfg.File == "" {
		slog.SetDefault(slog.New(console))
		return func() error { return nil }
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.SetDefault(slog.New(console))
		slog.Error("failed to open log file, using console only", "error", err, "file", cfg.File)
		return func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, opts)
	slog.SetDefault(slog.New(slogmulti.Fanout(console, fileHandler)))
	return file.Close
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a logger with a component name.
func Component(name string) *slog.Logger {
	return slog.With("component", name)
}

// RecordLogger creates a logger with record migration context fields.
func RecordLogger(correlationID, collection, slug string) *slog.Logger {
	return slog.With(
		"correlation_id", correlationID,
		"collection", collection,
		"record", slug,
	)
}
