// Package status provides scheduled run status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stacklok/catalog-mirror/internal/kvstore"
)

// DefaultKeyPrefix prefixes the key every strategy status is stored under.
const DefaultKeyPrefix = "sync_status:"

// Persistence defines the interface for run status persistence
type Persistence interface {
	// SaveStatus saves the run status of a strategy
	SaveStatus(ctx context.Context, strategy string, status *RunStatus) error

	// LoadStatus loads the run status of a strategy.
	// Returns an empty RunStatus if none was saved (first run)
	LoadStatus(ctx context.Context, strategy string) (*RunStatus, error)

	// LoadAllStatus loads the run status of every named strategy
	LoadAllStatus(ctx context.Context, strategies []string) (map[string]*RunStatus, error)
}

// kvPersistence implements Persistence on a key/value store
type kvPersistence struct {
	kv     kvstore.Store
	prefix string
}

// NewKVPersistence creates a Persistence storing one JSON document per
// strategy under prefix+name. Statuses never expire.
func NewKVPersistence(kv kvstore.Store, prefix string) Persistence {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &kvPersistence{kv: kv, prefix: prefix}
}

func (p *kvPersistence) SaveStatus(ctx context.Context, strategy string, status *RunStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status for strategy '%s': %w", strategy, err)
	}
	if err := p.kv.Set(ctx, p.prefix+strategy, string(data), 0); err != nil {
		return fmt.Errorf("failed to save status for strategy '%s': %w", strategy, err)
	}
	return nil
}

func (p *kvPersistence) LoadStatus(ctx context.Context, strategy string) (*RunStatus, error) {
	raw, ok, err := p.kv.Get(ctx, p.prefix+strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to read status for strategy '%s': %w", strategy, err)
	}
	if !ok {
		return &RunStatus{}, nil
	}

	var status RunStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for strategy '%s': %w", strategy, err)
	}
	return &status, nil
}

func (p *kvPersistence) LoadAllStatus(ctx context.Context, strategies []string) (map[string]*RunStatus, error) {
	result := make(map[string]*RunStatus, len(strategies))
	for _, name := range strategies {
		status, err := p.LoadStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		result[name] = status
	}
	return result, nil
}
