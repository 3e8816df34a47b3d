// internal/logging/logger.go
package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a new structured logger
func NewLogger(format string, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRule returns a logger with the rule name attached
func WithRule(logger *slog.Logger, ruleName string) *slog.Logger {
	return logger.With("rule", ruleName)
}

// Discard returns a logger that drops everything. Used where a component is
// built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Open builds the daemon logger. An empty path logs to stdout; otherwise the
// file is rotated at maxSizeMB. The returned closer is never nil.
func Open(format, level, path string, maxSizeMB int) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return NewLogger(format, level, os.Stdout), nopCloser{}, nil
	}
	w, err := NewRotatingWriter(path, int64(maxSizeMB)*1024*1024)
	if err != nil {
		return NewLogger(format, level, os.Stdout), nopCloser{}, err
	}
	return NewLogger(format, level, w), w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
