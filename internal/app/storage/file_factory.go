package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/kvstore"
	"github.com/stacklok/catalog-mirror/internal/store"
)

// FileFactory persists the key/value state to a JSON file so checkpoints,
// the rotation cursor and schedule status survive restarts. Mirrored
// documents are kept in memory.
type FileFactory struct {
	path string
	kv   kvstore.Store
	docs store.Store
}

var _ Factory = (*FileFactory)(nil)

// FileFactoryOption configures a FileFactory.
type FileFactoryOption func(*fileFactoryConfig)

type fileFactoryConfig struct {
	fs afero.Fs
}

// WithFilesystem replaces the OS filesystem, typically with afero.NewMemMapFs in tests.
func WithFilesystem(fs afero.Fs) FileFactoryOption {
	return func(c *fileFactoryConfig) {
		c.fs = fs
	}
}

// NewFileFactory creates a file-backed storage factory, ensuring the state
// file's directory exists.
func NewFileFactory(cfg *config.Config, opts ...FileFactoryOption) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Storage.File == nil || cfg.Storage.File.Path == "" {
		return nil, fmt.Errorf("file storage path is required for file storage type")
	}

	fc := &fileFactoryConfig{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(fc)
	}

	path := cfg.Storage.File.Path
	dir := filepath.Dir(path)
	if err := fc.fs.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	var kvOpts []kvstore.FileOption
	if _, onDisk := fc.fs.(*afero.OsFs); onDisk {
		kvOpts = append(kvOpts, kvstore.WithProcessLock())
	}

	slog.Info("Creating file-based storage factory", "path", path, "process_lock", len(kvOpts) > 0)

	return &FileFactory{
		path: path,
		kv:   kvstore.NewFileStore(fc.fs, path, kvOpts...),
		docs: store.NewMemoryStore(),
	}, nil
}

// CreateKVStore returns the file-backed key/value store.
func (f *FileFactory) CreateKVStore(_ context.Context) (kvstore.Store, error) {
	slog.Debug("Using file-backed key/value store", "path", f.path)
	return f.kv, nil
}

// CreateDocumentStore returns the in-memory document store.
func (f *FileFactory) CreateDocumentStore(_ context.Context) (store.Store, error) {
	return f.docs, nil
}

// Cleanup is a no-op; every write is flushed to the file immediately.
func (*FileFactory) Cleanup() {}
