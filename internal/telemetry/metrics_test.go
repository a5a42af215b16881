package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualProvider(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestNilMetricsAreNoOps(t *testing.T) {
	t.Parallel()

	syncMetrics, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, syncMetrics)

	storeMetrics, err := NewStoreMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, storeMetrics)

	assert.NotPanics(t, func() {
		syncMetrics.RecordRun(context.Background(), "DailyIncremental", time.Second, true, 1, 2, 3)
		syncMetrics.RecordBreakerTrip(context.Background(), "FullBackfill")
		storeMetrics.RecordTotals(context.Background(), 10, 20)
	})
	assert.NoError(t, RegisterQueueGauge(nil, map[string]QueueLengther{"list": queueLen(1)}))
}

func TestSyncMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	reader, mp := newManualProvider(t)
	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRun(ctx, "DailyIncremental", 1500*time.Millisecond, true, 110, 40, 2)
	metrics.RecordRun(ctx, "DailyIncremental", 500*time.Millisecond, false, 5, 0, 1)
	metrics.RecordRun(ctx, "YearlyUpdate", time.Second, true, 7, 3, 0)
	metrics.RecordBreakerTrip(ctx, "FullBackfill")

	data := collect(t, reader)

	assert.Equal(t, int64(115), sumFor(t, data["catalog_mirror_subjects_processed_total"], "strategy", "DailyIncremental"))
	assert.Equal(t, int64(7), sumFor(t, data["catalog_mirror_subjects_processed_total"], "strategy", "YearlyUpdate"))
	assert.Equal(t, int64(40), sumFor(t, data["catalog_mirror_characters_processed_total"], "strategy", "DailyIncremental"))
	assert.Equal(t, int64(3), sumFor(t, data["catalog_mirror_sync_errors_total"], "strategy", "DailyIncremental"))
	assert.Equal(t, int64(1), sumFor(t, data["catalog_mirror_breaker_trips_total"], "strategy", "FullBackfill"))

	hist, ok := data["catalog_mirror_sync_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok, "expected histogram")
	var total float64
	for _, dp := range hist.DataPoints {
		total += dp.Sum
	}
	assert.InDelta(t, 3.0, total, 0.001)
}

type queueLen int

func (q queueLen) QueueLength() int { return int(q) }

func TestRegisterQueueGauge(t *testing.T) {
	t.Parallel()

	reader, mp := newManualProvider(t)
	require.NoError(t, RegisterQueueGauge(mp, map[string]QueueLengther{
		"list":   queueLen(3),
		"detail": queueLen(12),
	}))

	gauge, ok := collect(t, reader)["catalog_mirror_ratelimit_queue_length"].(metricdata.Gauge[int64])
	require.True(t, ok, "expected int64 gauge")

	observed := map[string]int64{}
	for _, dp := range gauge.DataPoints {
		v, _ := dp.Attributes.Value("limiter")
		observed[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"list": 3, "detail": 12}, observed)
}

func TestStoreMetrics_RecordTotals(t *testing.T) {
	t.Parallel()

	reader, mp := newManualProvider(t)
	metrics, err := NewStoreMetrics(mp)
	require.NoError(t, err)

	metrics.RecordTotals(context.Background(), 1200, 5400)

	gauge, ok := collect(t, reader)["catalog_mirror_documents"].(metricdata.Gauge[int64])
	require.True(t, ok, "expected int64 gauge")

	observed := map[string]int64{}
	for _, dp := range gauge.DataPoints {
		v, _ := dp.Attributes.Value("kind")
		observed[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"subject": 1200, "character": 5400}, observed)
}
