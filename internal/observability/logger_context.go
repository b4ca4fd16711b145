// Package observability provides structured logging, metrics, tracing, and
// a circuit breaker used across the gateway and the two workers.
package observability

import (
	"context"
	"log/slog"
)

// loggerContextKey is the private context key used to store a *slog.Logger.
type loggerContextKey struct{}

// requestIDContextKey is the private context key used to store the
// originating request_id so that worker goroutines and deeper layers can
// correlate their logs with the request that triggered them, even after
// it has crossed a broker hop.
type requestIDContextKey struct{}

// ContextWithLogger attaches a non-nil logger to the context.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// LoggerFromContext returns the logger stored in the context or the default
// slog logger when none is present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if v := ctx.Value(loggerContextKey{}); v != nil {
		if lg, ok := v.(*slog.Logger); ok && lg != nil {
			return lg
		}
	}
	return slog.Default()
}

// ContextWithRequestID stores a non-empty request_id in the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext retrieves the request_id from the context, or an
// empty string when none is present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(requestIDContextKey{}); v != nil {
		if rid, ok := v.(string); ok {
			return rid
		}
	}
	return ""
}

// WithLoggerFields returns a child context whose logger has the given
// key/value pairs attached, layered on top of whatever logger (or the
// default) is already in ctx. The broker consumers use it, through
// shared.PrepareContext, to bind message fields (message_id, or topic and
// offset) before handing the context to a handler.
func WithLoggerFields(ctx context.Context, args ...any) context.Context {
	lg := LoggerFromContext(ctx).With(args...)
	return ContextWithLogger(ctx, lg)
}
