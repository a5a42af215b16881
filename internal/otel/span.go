// Package otel provides OpenTelemetry instrumentation utilities for the sync engine.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans across the engine.
const (
	AttrStrategy            = attribute.Key("sync.strategy")
	AttrSubjectID           = attribute.Key("subject.id")
	AttrOffset              = attribute.Key("pagination.offset")
	AttrPageSize            = attribute.Key("pagination.limit")
	AttrTotal               = attribute.Key("pagination.total")
	AttrSubjectsProcessed   = attribute.Key("sync.subjects_processed")
	AttrCharactersProcessed = attribute.Key("sync.characters_processed")
	AttrErrorCount          = attribute.Key("sync.error_count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the
// span already carried by ctx.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span as failed. The status
// description stays generic; details are kept in the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
