package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultMetricsInterval is the OTLP push interval
const DefaultMetricsInterval = 60 * time.Second

// NewMeterProvider creates a MeterProvider for the configured exporter, or a
// no-op provider when metrics are disabled. The Prometheus exporter registers
// with registerer, falling back to the default registry when it is nil. The
// caller must Shutdown the returned SDK provider.
func NewMeterProvider(
	ctx context.Context,
	target Target,
	mc *MetricsConfig,
	registerer prometheus.Registerer,
) (metric.MeterProvider, error) {
	if mc == nil || !mc.Enabled {
		slog.Info("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), nil
	}

	res, err := target.resource(ctx)
	if err != nil {
		return nil, err
	}

	var reader sdkmetric.Reader
	switch mc.GetExporter() {
	case ExporterPrometheus:
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		reader, err = otelprom.New(otelprom.WithRegisterer(registerer))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
	default:
		reader, err = newOTLPReader(ctx, target)
		if err != nil {
			return nil, err
		}
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized", "exporter", mc.GetExporter(), "endpoint", target.Endpoint)
	return mp, nil
}

// newOTLPReader pushes metrics to the target collector every DefaultMetricsInterval.
func newOTLPReader(ctx context.Context, target Target) (sdkmetric.Reader, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(target.Endpoint)}
	if target.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(DefaultMetricsInterval)), nil
}
