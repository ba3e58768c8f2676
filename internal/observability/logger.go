// Package observability provides structured logging for lavacast.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lavacast/lavacast/internal/config"
)

// Custom levels above Info. STREAM marks stream lifecycle transitions and
// SYSTEM marks process-level events (startup, restart, shutdown); both are
// always emitted when the level is info or lower.
const (
	// LevelStream is the level for stream start/stop events.
	LevelStream = slog.LevelInfo + 2
	// LevelSystem is the level for process lifecycle events.
	LevelSystem = slog.LevelInfo + 3
)

// LevelName returns the canonical name for a level, including the custom
// STREAM and SYSTEM levels.
func LevelName(level slog.Level) string {
	switch {
	case level == LevelStream:
		return "STREAM"
	case level == LevelSystem:
		return "SYSTEM"
	default:
		return level.String()
	}
}

// NewLogger creates a new slog.Logger based on the provided configuration.
// The logger supports JSON and text formats with configurable log levels.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stderr)
}

// NewLoggerWithWriter creates a new slog.Logger that writes to the provided
// writer. Useful for testing or custom output destinations.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, LevelName(l))
				}
			}
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent adds a component name to the logger for identifying the source.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// Stream logs a stream lifecycle event at the STREAM level.
func Stream(logger *slog.Logger, msg string, attrs ...any) {
	logger.Log(context.Background(), LevelStream, msg, attrs...)
}

// System logs a process lifecycle event at the SYSTEM level.
func System(logger *slog.Logger, msg string, attrs ...any) {
	logger.Log(context.Background(), LevelSystem, msg, attrs...)
}

// SetDefault sets the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
