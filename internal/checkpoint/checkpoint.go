// Package checkpoint persists the pagination offset of a resumable job.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stacklok/catalog-mirror/internal/kvstore"
)

// DefaultTTL is how long an abandoned checkpoint survives.
const DefaultTTL = 14 * 24 * time.Hour

// Store loads and saves a single job's offset under a fixed key.
type Store struct {
	kv  kvstore.Store
	key string
	ttl time.Duration
}

// New creates a checkpoint Store for key. A non-positive ttl uses DefaultTTL.
func New(kv kvstore.Store, key string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, key: key, ttl: ttl}
}

// Key returns the key the checkpoint is stored under.
func (s *Store) Key() string {
	return s.key
}

// Load returns the saved offset, or 0 when there is none or it cannot be parsed.
func (s *Store) Load(ctx context.Context) (int, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint %s: %w", s.key, err)
	}
	if !ok {
		return 0, nil
	}

	offset, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || offset < 0 {
		slog.Warn("Ignoring malformed checkpoint", "key", s.key, "value", raw)
		return 0, nil
	}
	return offset, nil
}

// Save persists offset with the configured expiry.
func (s *Store) Save(ctx context.Context, offset int) error {
	if offset < 0 {
		return fmt.Errorf("checkpoint offset must not be negative, got %d", offset)
	}
	if err := s.kv.Set(ctx, s.key, strconv.Itoa(offset), s.ttl); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", s.key, err)
	}
	return nil
}

// Clear removes the checkpoint after the job completes.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear checkpoint %s: %w", s.key, err)
	}
	return nil
}
