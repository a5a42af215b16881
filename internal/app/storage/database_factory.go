package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/kvstore"
	"github.com/stacklok/catalog-mirror/internal/store"
)

// DatabaseFactory creates PostgreSQL-backed stores sharing one connection pool.
type DatabaseFactory struct {
	pool *pgxpool.Pool
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a database-backed storage factory. It
// establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Storage.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return NewDatabaseFactoryFromPool(pool), nil
}

// NewDatabaseFactoryFromPool wraps an existing pool. The factory takes
// ownership and closes the pool on Cleanup.
func NewDatabaseFactoryFromPool(pool *pgxpool.Pool) *DatabaseFactory {
	return &DatabaseFactory{pool: pool}
}

// CreateKVStore returns the key/value store backed by the kv_entries table.
func (d *DatabaseFactory) CreateKVStore(_ context.Context) (kvstore.Store, error) {
	slog.Debug("Creating database-backed key/value store")
	return kvstore.NewPostgresStore(d.pool), nil
}

// CreateDocumentStore returns the subject and character store.
func (d *DatabaseFactory) CreateDocumentStore(_ context.Context) (store.Store, error) {
	slog.Debug("Creating database-backed document store")
	return store.NewPostgresStore(d.pool), nil
}

// Cleanup closes the connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// buildDatabaseConnectionPool creates a connection pool configured from cfg.
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := poolConfigFor(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	slog.Info("Database connection pool created successfully",
		"host", cfg.Host, "database", cfg.Database, "max_conns", poolConfig.MaxConns)
	return pool, nil
}

func poolConfigFor(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build database connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}
	return poolConfig, nil
}
