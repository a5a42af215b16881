package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Target identifies the service and the OTLP collector that both providers
// report to.
type Target struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
}

// TargetFromConfig resolves the defaulted service and collector settings of cfg.
func TargetFromConfig(cfg *Config) Target {
	if cfg == nil {
		cfg = &Config{}
	}
	return Target{
		ServiceName:    cfg.GetServiceName(),
		ServiceVersion: cfg.GetServiceVersion(),
		Endpoint:       cfg.GetEndpoint(),
		Insecure:       cfg.Insecure,
	}
}

// resource describes the service. resource.New avoids schema URL conflicts
// with resource.Default().
func (t Target) resource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(t.ServiceName),
			semconv.ServiceVersion(t.ServiceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// NewTracerProvider creates a TracerProvider exporting spans to the target
// collector, or a no-op provider when tracing is disabled. Spans follow the
// sampling decision of an incoming parent, so runs started through the API
// join the caller's trace. The caller must Shutdown the returned SDK provider.
func NewTracerProvider(ctx context.Context, target Target, tc *TracingConfig) (trace.TracerProvider, error) {
	if tc == nil || !tc.Enabled {
		slog.Info("Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), nil
	}

	res, err := target.resource(ctx)
	if err != nil {
		return nil, err
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(target.Endpoint)}
	if target.Insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if target.Insecure {
		slog.Warn("Tracing configured with insecure connection, spans are sent over plain HTTP")
	}
	slog.Info("Tracing initialized",
		"endpoint", target.Endpoint,
		"sampling_ratio", tc.GetSampling(),
	)
	return tp, nil
}
