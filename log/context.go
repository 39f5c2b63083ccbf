package log

import "context"

// loggerKey is the key for the Logger stored in a context.
type loggerKey struct{}

// ToContext attaches logger to ctx.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the Logger attached to ctx, or nil if none was attached.
func FromContext(ctx context.Context) Logger {
	logger, _ := ctx.Value(loggerKey{}).(Logger)
	return logger
}

// FromContextOrNoop is FromContext but returns a no-op Logger instead of nil.
func FromContextOrNoop(ctx context.Context) Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}
	return Noop()
}
