package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/catalog-mirror/internal/versions"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	for _, cfg := range []*Config{nil, {Enabled: false}} {
		tel, err := New(context.Background(), WithTelemetryConfig(cfg))
		require.NoError(t, err)

		_, ok := tel.TracerProvider().(tracenoop.TracerProvider)
		assert.True(t, ok, "expected no-op tracer provider")
		_, ok = tel.MeterProvider().(metricnoop.MeterProvider)
		assert.True(t, ok, "expected no-op meter provider")
		assert.Nil(t, tel.MetricsHandler())
		assert.NotNil(t, tel.Tracer("test"))
		require.NoError(t, tel.Shutdown(context.Background()))
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), WithTelemetryConfig(&Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true, Exporter: "graphite"},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry configuration")
}

func TestNew_OTLPTracing(t *testing.T) {
	t.Parallel()

	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	ctx := context.Background()
	tel, err := New(ctx, WithTelemetryConfig(&Config{
		Enabled:  true,
		Endpoint: strings.TrimPrefix(collector.URL, "http://"),
		Insecure: true,
		Tracing:  &TracingConfig{Enabled: true, Sampling: 1},
	}))
	require.NoError(t, err)

	_, ok := tel.TracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected SDK tracer provider")
	_, span := tel.Tracer("test").Start(ctx, "sync.execute")
	span.End()

	require.NoError(t, tel.Shutdown(ctx))
}

func TestNew_PrometheusExporter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tel, err := New(ctx, WithTelemetryConfig(&Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterPrometheus},
	}))
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(ctx) }()

	_, ok := tel.MeterProvider().(*sdkmetric.MeterProvider)
	require.True(t, ok, "expected SDK meter provider")

	metrics, err := NewSyncMetrics(tel.MeterProvider())
	require.NoError(t, err)
	metrics.RecordBreakerTrip(ctx, "FullBackfill")

	handler := tel.MetricsHandler()
	require.NotNil(t, handler)

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "catalog_mirror_breaker_trips")
	assert.Contains(t, string(body), `strategy="FullBackfill"`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTargetFromConfig(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Target{
		ServiceName:    DefaultServiceName,
		ServiceVersion: versions.Version,
		Endpoint:       DefaultEndpoint,
	}, TargetFromConfig(nil))

	assert.Equal(t, Target{
		ServiceName:    "mirror-eu",
		ServiceVersion: "2.0.0",
		Endpoint:       "collector:4318",
		Insecure:       true,
	}, TargetFromConfig(&Config{
		ServiceName:    "mirror-eu",
		ServiceVersion: "2.0.0",
		Endpoint:       "collector:4318",
		Insecure:       true,
	}))
}

func TestProviders_DisabledSections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	target := TargetFromConfig(nil)

	tp, err := NewTracerProvider(ctx, target, &TracingConfig{Enabled: false})
	require.NoError(t, err)
	_, ok := tp.(tracenoop.TracerProvider)
	assert.True(t, ok)

	mp, err := NewMeterProvider(ctx, target, nil, nil)
	require.NoError(t, err)
	_, ok = mp.(metricnoop.MeterProvider)
	assert.True(t, ok)
}
