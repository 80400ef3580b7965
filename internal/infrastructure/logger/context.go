package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey struct{}

// scope is the request state attached to a context
type scope struct {
	log       *zap.Logger
	requestID string
	userID    string
	role      string
}

func scopeOf(ctx context.Context) scope {
	if s, ok := ctx.Value(ctxKey{}).(scope); ok {
		return s
	}
	return scope{}
}

// WithContext attaches log to ctx
func WithContext(ctx context.Context, log *zap.Logger) context.Context {
	s := scopeOf(ctx)
	s.log = log
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the attached logger, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if s := scopeOf(ctx); s.log != nil {
		return s.log
	}
	return zap.NewNop()
}

// WithRequestID records the request id and tags the attached logger with it
func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := scopeOf(ctx)
	s.requestID = requestID
	if s.log != nil {
		s.log = s.log.With(zap.String("request_id", requestID))
	}
	return context.WithValue(ctx, ctxKey{}, s)
}

// WithPrincipal records the authenticated caller and tags the attached
// logger with it
func WithPrincipal(ctx context.Context, userID, role string) context.Context {
	s := scopeOf(ctx)
	s.userID, s.role = userID, role
	if s.log != nil {
		s.log = s.log.With(zap.String("user_id", userID), zap.String("role", role))
	}
	return context.WithValue(ctx, ctxKey{}, s)
}

// RequestID returns the id recorded by WithRequestID
func RequestID(ctx context.Context) string { return scopeOf(ctx).requestID }

// UserID returns the caller recorded by WithPrincipal
func UserID(ctx context.Context) string { return scopeOf(ctx).userID }

// Role returns the caller role recorded by WithPrincipal
func Role(ctx context.Context) string { return scopeOf(ctx).role }

// L returns the attached logger tagged with the trace and span of ctx.
//
//	logger.L(ctx).Warn("callback rejected", zap.String("checkout_request_id", id))
func L(ctx context.Context) *zap.Logger {
	log := FromContext(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		log = log.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return log
}
