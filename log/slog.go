package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// slogLogger adapts log/slog to the Logger interface.
type slogLogger struct {
	inner *slog.Logger
}

// NewSlog builds a Logger backed by log/slog with a JSON handler writing to
// stderr. level is one of "debug", "info", "warn", "error" (case-insensitive).
func NewSlog(level string) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return &slogLogger{inner: slog.New(handler)}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log: unrecognised level %q", level)
	}
}

func (l *slogLogger) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }
func (l *slogLogger) Info(msg string, keysAndValues ...any)  { l.inner.Info(msg, keysAndValues...) }
func (l *slogLogger) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l *slogLogger) Error(msg string, keysAndValues ...any) { l.inner.Error(msg, keysAndValues...) }
