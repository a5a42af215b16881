package telemetry

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the meter for strategy runs
	SyncMetricsMeterName = "github.com/stacklok/catalog-mirror/sync"

	// StoreMetricsMeterName is the meter for the mirrored data set
	StoreMetricsMeterName = "github.com/stacklok/catalog-mirror/store"
)

// SyncMetrics holds the instruments recorded for strategy runs.
type SyncMetrics struct {
	syncDuration        metric.Float64Histogram
	subjectsProcessed   metric.Int64Counter
	charactersProcessed metric.Int64Counter
	syncErrors          metric.Int64Counter
	breakerTrips        metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"catalog_mirror_sync_duration_seconds",
		metric.WithDescription("Duration of strategy runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 30, 60, 300, 900, 1800, 3600, 7200, 14400),
	)
	if err != nil {
		return nil, err
	}

	subjectsProcessed, err := meter.Int64Counter(
		"catalog_mirror_subjects_processed_total",
		metric.WithDescription("Subjects synchronised by strategy runs"),
		metric.WithUnit("{subject}"),
	)
	if err != nil {
		return nil, err
	}

	charactersProcessed, err := meter.Int64Counter(
		"catalog_mirror_characters_processed_total",
		metric.WithDescription("Characters refreshed by strategy runs"),
		metric.WithUnit("{character}"),
	)
	if err != nil {
		return nil, err
	}

	syncErrors, err := meter.Int64Counter(
		"catalog_mirror_sync_errors_total",
		metric.WithDescription("Per-entity and per-page errors recorded by strategy runs"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	breakerTrips, err := meter.Int64Counter(
		"catalog_mirror_breaker_trips_total",
		metric.WithDescription("Jobs aborted by the circuit breaker"),
		metric.WithUnit("{trip}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:        syncDuration,
		subjectsProcessed:   subjectsProcessed,
		charactersProcessed: charactersProcessed,
		syncErrors:          syncErrors,
		breakerTrips:        breakerTrips,
	}, nil
}

// RecordRun records the outcome of one strategy run.
func (m *SyncMetrics) RecordRun(
	ctx context.Context,
	strategy string,
	duration time.Duration,
	success bool,
	subjects, characters, errs int,
) {
	if m == nil {
		return
	}

	byStrategy := metric.WithAttributes(attribute.String("strategy", strategy))
	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", success),
	))
	m.subjectsProcessed.Add(ctx, int64(subjects), byStrategy)
	m.charactersProcessed.Add(ctx, int64(characters), byStrategy)
	m.syncErrors.Add(ctx, int64(errs), byStrategy)
}

// RecordBreakerTrip counts a circuit breaker abort.
func (m *SyncMetrics) RecordBreakerTrip(ctx context.Context, strategy string) {
	if m == nil {
		return
	}
	m.breakerTrips.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// QueueLengther reports the number of callers waiting on a rate limiter.
type QueueLengther interface {
	QueueLength() int
}

// RegisterQueueGauge observes the backlog of each named limiter. It is a no-op
// when provider is nil.
func RegisterQueueGauge(provider metric.MeterProvider, limiters map[string]QueueLengther) error {
	if provider == nil || len(limiters) == 0 {
		return nil
	}

	names := make([]string, 0, len(limiters))
	for name := range limiters {
		names = append(names, name)
	}
	sort.Strings(names)

	_, err := provider.Meter(SyncMetricsMeterName).Int64ObservableGauge(
		"catalog_mirror_ratelimit_queue_length",
		metric.WithDescription("Callers waiting for rate limiter admission"),
		metric.WithUnit("{caller}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, name := range names {
				o.Observe(int64(limiters[name].QueueLength()), metric.WithAttributes(attribute.String("limiter", name)))
			}
			return nil
		}),
	)
	return err
}

// StoreMetrics tracks the size of the mirrored data set.
type StoreMetrics struct {
	documents metric.Int64Gauge
}

// NewStoreMetrics creates a new StoreMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewStoreMetrics(provider metric.MeterProvider) (*StoreMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	documents, err := provider.Meter(StoreMetricsMeterName).Int64Gauge(
		"catalog_mirror_documents",
		metric.WithDescription("Documents held in the local store"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}
	return &StoreMetrics{documents: documents}, nil
}

// RecordTotals records the stored subject and character counts.
func (m *StoreMetrics) RecordTotals(ctx context.Context, subjects, characters int64) {
	if m == nil {
		return
	}
	m.documents.Record(ctx, subjects, metric.WithAttributes(attribute.String("kind", "subject")))
	m.documents.Record(ctx, characters, metric.WithAttributes(attribute.String("kind", "character")))
}
