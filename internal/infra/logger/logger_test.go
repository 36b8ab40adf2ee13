package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestTraceContextHandler_AddsSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceContextHandler(slog.NewJSONHandler(&buf, nil)))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside_span")
	span.End()

	logger.Info("outside_span")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0]["span_id"])
	assert.NotContains(t, entries[1], "trace_id")
}

func TestFromContext_CorrelationKeys(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithFlow(WithRequestID(context.Background(), "req-7"), "ask")
	FromContext(ctx, base).Info("request_failed")
	FromContext(context.Background(), base).Info("no_keys")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-7", entries[0]["protocol.request.id"])
	assert.Equal(t, "ask", entries[0]["protocol.flow"])
	assert.NotContains(t, entries[1], "protocol.request.id")
}

func TestMultiHandler_FansOutByLevel(t *testing.T) {
	var info, errs bytes.Buffer
	h := NewMultiHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With(slog.String("component", "gate"))

	logger.Info("guardrail_verdict")
	logger.Error("audit_write_failed")

	assert.Len(t, decodeLines(t, &info), 2)
	errEntries := decodeLines(t, &errs)
	require.Len(t, errEntries, 1)
	assert.Equal(t, "audit_write_failed", errEntries[0]["msg"])
	assert.Equal(t, "gate", errEntries[0]["component"])
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, parseLevel("warn"), false)

	logger.Info("dropped")
	logger.Warn("kept")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
