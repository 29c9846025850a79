// Package logging provides the shared structured logger for dropflow.
//
// Every component asks for its own logger with New("component"); all of them
// share one slog handler writing text to stderr. The level is read once from
// DROPFLOW_LOG_LEVEL (debug, info, warn, error) and defaults to info.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	initLogger sync.Once
	baseLogger *slog.Logger
)

// New returns a logger tagged with component="<component>". An empty
// component returns the base logger.
func New(component string) *slog.Logger {
	initLogger.Do(func() {
		baseLogger = newLogger(os.Stderr, os.Getenv("DROPFLOW_LOG_LEVEL"))
	})
	if component == "" {
		return baseLogger
	}
	return baseLogger.With("component", component)
}

// Discard returns a logger that drops everything. Tests use it to keep output quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

// parseLevel maps a level name to a slog.Level, falling back to info.
func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
