package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestStores(c *clock) map[string]Store {
	mem := NewMemoryStore().(*memoryStore)
	mem.now = c.Now

	file := NewFileStore(afero.NewMemMapFs(), "/var/lib/catalog-mirror/kv.json").(*fileStore)
	file.now = c.Now

	return map[string]Store{
		"memory": mem,
		"file":   file,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	for name, store := range newTestStores(c) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "bangumi:full_sync:checkpoint", "42", 0))
			value, ok, err := store.Get(ctx, "bangumi:full_sync:checkpoint")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "42", value)

			require.NoError(t, store.Set(ctx, "bangumi:full_sync:checkpoint", "43", 0))
			value, _, err = store.Get(ctx, "bangumi:full_sync:checkpoint")
			require.NoError(t, err)
			assert.Equal(t, "43", value)

			require.NoError(t, store.Delete(ctx, "bangumi:full_sync:checkpoint"))
			_, ok, err = store.Get(ctx, "bangumi:full_sync:checkpoint")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Delete(ctx, "never-set"))
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	stores := newTestStores(c)
	ctx := context.Background()

	for _, store := range stores {
		require.NoError(t, store.Set(ctx, "short", "v", time.Hour))
		require.NoError(t, store.Set(ctx, "forever", "v", 0))
	}

	c.now = c.now.Add(59 * time.Minute)
	for name, store := range stores {
		_, ok, err := store.Get(ctx, "short")
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	c.now = c.now.Add(time.Minute)
	for name, store := range stores {
		_, ok, err := store.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok, name)

		_, ok, err = store.Get(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	ctx := context.Background()

	first := NewFileStore(fs, "/data/kv.json")
	require.NoError(t, first.Set(ctx, "bangumi:monthly_rotation:current_month", "7", 0))

	second := NewFileStore(fs, "/data/kv.json")
	value, ok, err := second.Get(ctx, "bangumi:monthly_rotation:current_month")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", value)

	leftovers, err := afero.Glob(fs, "/data/.kv-*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/kv.json", []byte("{not json"), 0600))

	store := NewFileStore(fs, "/data/kv.json")
	_, _, err := store.Get(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse key/value file")
}

func TestFileStore_ProcessLockSerialisesInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "kv.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))

	// Two handles stand in for a server and a CLI sharing the state file.
	stores := []Store{
		NewFileStore(afero.NewOsFs(), path, WithProcessLock()),
		NewFileStore(afero.NewOsFs(), path, WithProcessLock()),
	}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, stores[i%2].Set(ctx, fmt.Sprintf("key:%d", i), strconv.Itoa(i), 0))
		}()
	}
	wg.Wait()

	for i := range 20 {
		value, ok, err := stores[0].Get(ctx, fmt.Sprintf("key:%d", i))
		require.NoError(t, err)
		require.True(t, ok, "key:%d lost", i)
		assert.Equal(t, strconv.Itoa(i), value)
	}
	assert.FileExists(t, path+".lock")
}
