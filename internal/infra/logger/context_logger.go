package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "protocol.request.id"
	FlowKey      ContextKey = "protocol.flow"
)

// WithRequestID stores the request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithFlow stores the pipeline flow name (ask, compare).
func WithFlow(ctx context.Context, flow string) context.Context {
	return context.WithValue(ctx, FlowKey, flow)
}

// FromContext returns logger with the correlation values found in ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	var fields []any
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		fields = append(fields, string(RequestIDKey), id)
	}
	if flow, ok := ctx.Value(FlowKey).(string); ok && flow != "" {
		fields = append(fields, string(FlowKey), flow)
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
