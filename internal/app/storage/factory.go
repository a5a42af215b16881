// Package storage creates the persistence backends of the mirror as a family.
// A factory always hands out a key/value store and a document store that
// live on compatible storage, and owns the resources they share.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/kvstore"
	"github.com/stacklok/catalog-mirror/internal/store"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components.
type Factory interface {
	// CreateKVStore returns the store holding checkpoints, the rotation
	// cursor and schedule status.
	CreateKVStore(ctx context.Context) (kvstore.Store, error)

	// CreateDocumentStore returns the store holding mirrored subjects and
	// characters.
	CreateDocumentStore(ctx context.Context) (store.Store, error)

	// Cleanup releases any resources held by this factory.
	Cleanup()
}

// NewStorageFactory creates a storage factory for the configured storage type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Storage.Type {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeFile:
		return NewFileFactory(cfg)
	case config.StorageTypeMemory, "":
		return NewMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}
