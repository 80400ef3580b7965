package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	log := FromContext(context.Background())
	require.NotNil(t, log)
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}

func TestContext_CarriesRequestAndPrincipal(t *testing.T) {
	log, logs := observed()

	ctx := WithContext(context.Background(), log)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithPrincipal(ctx, "user-9", "developer")

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "user-9", UserID(ctx))
	assert.Equal(t, "developer", Role(ctx))

	L(ctx).Info("payment recorded")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "user-9", fields["user_id"])
	assert.Equal(t, "developer", fields["role"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithRequestID_BeforeLogger(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-2")
	log, _ := observed()
	ctx = WithContext(ctx, log)

	assert.Equal(t, "req-2", RequestID(ctx))
	assert.Same(t, log, FromContext(ctx))
}

func TestL_AddsTraceIDs(t *testing.T) {
	log, logs := observed()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(WithContext(context.Background(), log), sc)

	L(ctx).Warn("slow callback")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["span_id"])
}
