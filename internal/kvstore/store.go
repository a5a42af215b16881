// Package kvstore provides the small durable key/value primitive used for
// job checkpoints, the rotation cursor and scheduler bookkeeping.
package kvstore

import (
	"context"
	"time"
)

// Store is a durable key/value store with optional per-key expiry.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the key
	// does not exist or has expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A zero ttl means the key never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// entry is the persisted form of a value in the file and memory stores.
type entry struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (e entry) expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

func newEntry(value string, ttl time.Duration, now time.Time) entry {
	e := entry{Value: value}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		e.ExpiresAt = &expiresAt
	}
	return e
}
