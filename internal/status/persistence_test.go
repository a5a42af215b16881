package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-mirror/internal/kvstore"
)

const testStrategy = "DailyIncremental"

type brokenKV struct{ kvstore.Store }

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestKVPersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemoryStore()
	persistence := NewKVPersistence(kv, "")

	now := time.Now().UTC().Truncate(time.Second)
	saved := &RunStatus{
		Phase:             RunPhaseComplete,
		Message:           "Run completed",
		RunID:             "6a1c",
		LastAttempt:       &now,
		LastSuccess:       &now,
		SubjectsProcessed: 110,
		ErrorCount:        2,
	}
	require.NoError(t, persistence.SaveStatus(ctx, testStrategy, saved))

	raw, ok, err := kv.Get(ctx, DefaultKeyPrefix+testStrategy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"phase":"Complete"`)

	loaded, err := persistence.LoadStatus(ctx, testStrategy)
	require.NoError(t, err)
	assert.Equal(t, saved.Phase, loaded.Phase)
	assert.Equal(t, saved.RunID, loaded.RunID)
	assert.Equal(t, saved.SubjectsProcessed, loaded.SubjectsProcessed)
	assert.True(t, now.Equal(*loaded.LastAttempt))
}

func TestKVPersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	loaded, err := NewKVPersistence(kvstore.NewMemoryStore(), "bangumi:").LoadStatus(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, &RunStatus{}, loaded)
}

func TestKVPersistence_LoadAllStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	persistence := NewKVPersistence(kvstore.NewMemoryStore(), "bangumi:")
	require.NoError(t, persistence.SaveStatus(ctx, "a", &RunStatus{Phase: RunPhaseFailed, AttemptCount: 2}))

	all, err := persistence.LoadAllStatus(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, RunPhaseFailed, all["a"].Phase)
	assert.Equal(t, 2, all["a"].AttemptCount)
	assert.Empty(t, all["b"].Phase)
}

func TestKVPersistence_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, DefaultKeyPrefix+testStrategy, "{not json", 0))

	_, err := NewKVPersistence(kv, "").LoadStatus(ctx, testStrategy)
	assert.ErrorContains(t, err, "failed to unmarshal")

	_, err = NewKVPersistence(brokenKV{kv}, "").LoadAllStatus(ctx, []string{testStrategy})
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunStatus_DueAt(t *testing.T) {
	t.Parallel()

	var never *RunStatus
	assert.True(t, never.DueAt(time.Hour).IsZero())
	assert.True(t, (&RunStatus{}).DueAt(time.Hour).IsZero())

	last := time.Date(2025, 1, 1, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, last.Add(24*time.Hour), (&RunStatus{LastAttempt: &last}).DueAt(24*time.Hour))
}
