package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/app/storage"
	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/checkpoint"
	"github.com/stacklok/catalog-mirror/internal/kvstore"
	"github.com/stacklok/catalog-mirror/internal/ratelimit"
	"github.com/stacklok/catalog-mirror/internal/store"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/sync/coordinator"
	"github.com/stacklok/catalog-mirror/internal/sync/rotation"
	"github.com/stacklok/catalog-mirror/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Storage owns the backing stores
	Storage   storage.Factory
	KV        kvstore.Store
	Documents store.Store

	// Catalog is the rate limited upstream client
	Catalog  catalog.Client
	Limiters map[string]*ratelimit.Limiter

	Checkpoint *checkpoint.Store
	Cursor     *rotation.Cursor

	// Manager holds the registered strategies
	Manager pkgsync.Manager

	// Coordinator runs the configured schedules
	Coordinator coordinator.Coordinator

	StoreMetrics *telemetry.StoreMetrics
}

// Ready reports whether the document store answers queries.
func (c *AppComponents) Ready(ctx context.Context) error {
	if c.Documents == nil {
		return fmt.Errorf("document store not initialized")
	}
	_, err := c.Documents.Stats(ctx)
	return err
}

// Close stops in-flight runs, releases rate limiter waiters and the storage.
// It blocks until background runs have returned.
func (c *AppComponents) Close() {
	if c.Manager != nil {
		c.Manager.StopAll()
	}
	for name, l := range c.Limiters {
		if n := l.QueueLength(); n > 0 {
			slog.Info("Releasing rate limiter waiters", "limiter", name, "waiting", n)
		}
		l.Clear()
	}
	if c.Manager != nil {
		c.Manager.Wait()
	}
	if c.Storage != nil {
		c.Storage.Cleanup()
	}
}

// observedStats records the store totals as metrics whenever they are read.
type observedStats struct {
	store   store.Store
	metrics *telemetry.StoreMetrics
}

func (o *observedStats) Stats(ctx context.Context) (*store.Stats, error) {
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordTotals(ctx, stats.Subjects, stats.Characters)
	return stats, nil
}
