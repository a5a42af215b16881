package storage

import (
	"context"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/kvstore"
	"github.com/stacklok/catalog-mirror/internal/store"
)

// MemoryFactory keeps all state in process memory. It suits one-off runs and
// tests; nothing survives a restart.
type MemoryFactory struct {
	kv   kvstore.Store
	docs store.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates an in-memory storage factory.
func NewMemoryFactory() *MemoryFactory {
	slog.Info("Creating in-memory storage factory")
	return &MemoryFactory{
		kv:   kvstore.NewMemoryStore(),
		docs: store.NewMemoryStore(),
	}
}

// CreateKVStore returns the shared in-memory key/value store.
func (m *MemoryFactory) CreateKVStore(_ context.Context) (kvstore.Store, error) {
	return m.kv, nil
}

// CreateDocumentStore returns the shared in-memory document store.
func (m *MemoryFactory) CreateDocumentStore(_ context.Context) (store.Store, error) {
	return m.docs, nil
}

// Cleanup is a no-op.
func (*MemoryFactory) Cleanup() {}
