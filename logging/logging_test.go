package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	Configure("debug", "json")
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	t.Cleanup(func() {
		Configure("", "")
		log.SetOutput(os.Stderr)
	})

	return buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	return out
}

func TestConfigure(t *testing.T) {
	Configure("warn", "text")
	require.Equal(t, log.WarnLevel, log.GetLevel())
	require.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
	require.False(t, log.StandardLogger().ReportCaller)

	Configure("debug", "JSON")
	require.Equal(t, log.DebugLevel, log.GetLevel())
	require.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	require.True(t, log.StandardLogger().ReportCaller)

	Configure("", "")
	require.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestRedactHook(t *testing.T) {
	buf := capture(t)

	log.WithFields(log.Fields{"secret": "deadbeef", "hashlock": "abc"}).Info("revealed")

	entry := decode(t, buf)
	require.Equal(t, redacted, entry["secret"])
	require.Equal(t, "abc", entry["hashlock"])
}

func TestContextHook(t *testing.T) {
	buf := capture(t)

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0000000000000010")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	log.WithContext(ctx).Info("traced")

	entry := decode(t, buf)
	require.Equal(t, "0102030405060708090a0b0c0d0e0f10", entry["trace_id"])
	require.Equal(t, "0000000000000010", entry["span_id"])
	require.Equal(t, "651345242494996240", entry["dd.trace_id"])
	require.Equal(t, "16", entry["dd.span_id"])
}

func TestLower64(t *testing.T) {
	require.Empty(t, lower64("abc"))
	require.Empty(t, lower64("zzzzzzzzzzzzzzzz"))
	require.Equal(t, "255", lower64("00000000000000ff"))
}
