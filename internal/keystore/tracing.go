package keystore

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kvdb/kvdb/internal/tracing"
)

// startSpan starts a span for a key store operation
func (a *Accessor) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "keystore."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(tracing.AttrOperation, operation),
			attribute.String(tracing.AttrKey, key),
		),
	)
}

// endSpan records the outcome. Only storage failures mark the span as an
// error; the rest are expected answers.
func endSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.String(tracing.AttrStatus, errorKind(err)))
	if err != nil && errors.Is(err, ErrStorageFailure) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
