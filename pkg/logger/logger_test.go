package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buffer := &bytes.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buffer), zap.DebugLevel)
	prev := Log
	Log = zap.New(core)
	t.Cleanup(func() { Log = prev })
	return buffer
}

func TestLogger_Info_WithRequestID(t *testing.T) {
	buffer := captureLogs(t)

	ctx := WithRequestID(context.Background(), "req-12345")
	Info(ctx, "deposit accepted", zap.Int64("deposit_id", 42), zap.String("amount", "1.5"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry), "log output must be valid JSON")

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "deposit accepted", entry["msg"])
	assert.Equal(t, float64(42), entry["deposit_id"])
	assert.Equal(t, "1.5", entry["amount"])
	assert.Equal(t, "req-12345", entry["request_id"])
}

func TestLogger_Warn_WithTraceID(t *testing.T) {
	buffer := captureLogs(t)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	Warn(ctx, "lock busy")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
}

func TestLogger_Error_NoContextFields(t *testing.T) {
	buffer := captureLogs(t)

	Error(context.Background(), "db down", zap.String("db", "mysql"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	_, hasRID := entry["request_id"]
	_, hasTrace := entry["trace_id"]
	assert.False(t, hasRID)
	assert.False(t, hasTrace)
	assert.Equal(t, "error", entry["level"])
}

func TestLogger_NotInitialized(t *testing.T) {
	prev := Log
	Log = nil
	defer func() { Log = prev }()

	assert.NotPanics(t, func() {
		Info(context.Background(), "nop")
		Sync()
	})
}
