package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp.Tracer("catalog-mirror-test")
}

func TestStartSpan(t *testing.T) {
	t.Parallel()

	t.Run("nil tracer yields the context span", func(t *testing.T) {
		t.Parallel()

		ctx, span := StartSpan(context.Background(), nil, "sync.execute")
		require.NotNil(t, ctx)
		require.NotNil(t, span)
		assert.False(t, span.SpanContext().IsValid())
		assert.NotPanics(t, func() { span.End() })
	})

	t.Run("records span with attributes", func(t *testing.T) {
		t.Parallel()

		exporter, tracer := newRecordingTracer(t)
		_, span := StartSpan(context.Background(), tracer, "sync.execute",
			trace.WithAttributes(AttrStrategy.String("DailyIncremental"), AttrOffset.Int(100)))
		require.True(t, span.SpanContext().IsValid())
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "sync.execute", spans[0].Name)

		attrs := map[string]string{}
		for _, attr := range spans[0].Attributes {
			attrs[string(attr.Key)] = attr.Value.Emit()
		}
		assert.Equal(t, "DailyIncremental", attrs["sync.strategy"])
		assert.Equal(t, "100", attrs["pagination.offset"])
	})
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	t.Run("nil safety", func(t *testing.T) {
		t.Parallel()

		assert.NotPanics(t, func() { RecordError(nil, errors.New("boom")) })
		assert.NotPanics(t, func() { RecordError(nil, nil) })

		exporter, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "noop")
		RecordError(span, nil)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Unset, spans[0].Status.Code)
		assert.Empty(t, spans[0].Events)
	})

	t.Run("records exception with generic status", func(t *testing.T) {
		t.Parallel()

		exporter, tracer := newRecordingTracer(t)
		_, span := tracer.Start(context.Background(), "sync.page")
		RecordError(span, errors.New("HTTP 503 for URL https://api.bgm.tv/v0/subjects"))
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "operation failed", spans[0].Status.Description)
		require.NotEmpty(t, spans[0].Events)
		assert.Equal(t, "exception", spans[0].Events[0].Name)
	})
}
