package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	actorKey
)

// WithRequest stores the request ID and the acting back-office user on ctx
// and returns a logger stamped with them and with the active trace. Empty
// values are left out.
func WithRequest(ctx context.Context, base *zap.Logger, requestID, actor string) (context.Context, *zap.Logger) {
	var fields []zap.Field
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
		fields = append(fields, zap.String("request_id", requestID))
	}
	if actor != "" {
		ctx = context.WithValue(ctx, actorKey, actor)
		fields = append(fields, zap.String("actor", actor))
	}
	fields = append(fields, TraceFields(ctx)...)

	l := base.With(fields...)
	return context.WithValue(ctx, loggerKey, l), l
}

// FromContext returns the request logger stored by WithRequest, or
// fallback outside a request.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return fallback
}

// RequestID returns the request ID stored on ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Actor returns the back-office user stored on ctx, or "".
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

// TraceFields returns trace_id and span_id for the span on ctx, or nothing
// when there is no sampled span context.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
