package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
)

// ServiceName is the instrumentation scope used for exported log records.
const ServiceName = "protocol-rag"

// New creates a JSON logger on stdout.
func New(level string) *slog.Logger {
	return NewWithOTel(level, false)
}

// NewWithOTel creates a logger that also exports records through the global
// OTel logger provider when enableOTel is set.
func NewWithOTel(level string, enableOTel bool) *slog.Logger {
	return newLogger(os.Stdout, parseLevel(level), enableOTel)
}

func newLogger(w io.Writer, level slog.Level, enableOTel bool) *slog.Logger {
	stdout := NewTraceContextHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))

	var handler slog.Handler = stdout
	if enableOTel {
		handler = NewMultiHandler(stdout, otelslog.NewHandler(
			ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		))
	}

	logger := slog.New(handler)
	logger.Info("logger_initialized",
		slog.String("level", level.String()),
		slog.Bool("otel_enabled", enableOTel))
	return logger
}

// MultiHandler fans a record out to several handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			_ = handler.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}
