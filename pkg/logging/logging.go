// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogLevel is the environment variable consulted when no level is given.
const EnvLogLevel = "LOG_LEVEL"

// ParseLevel converts a level name into a slog.Level.
// Unknown or empty names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewLogger creates a logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetDefaultCLILogger installs a stderr logger as the slog default.
// When debug is false the level comes from LOG_LEVEL.
func SetDefaultCLILogger(debug, json bool) {
	level := ParseLevel(os.Getenv(EnvLogLevel))
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(NewLogger(os.Stderr, level, json))
}
