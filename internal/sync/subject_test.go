package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/catalog/catalogtest"
	"github.com/stacklok/catalog-mirror/internal/store"
	"github.com/stacklok/catalog-mirror/internal/sync"
)

// agedStore reports selected characters as last written long ago.
type agedStore struct {
	store.Store
	aged map[int64]bool
}

func (s *agedStore) FindCharacter(ctx context.Context, id int64) (*store.Character, error) {
	c, err := s.Store.FindCharacter(ctx, id)
	if err == nil && s.aged[id] {
		c.UpdatedAt = time.Now().AddDate(-1, 0, 0)
	}
	return c, err
}

// failingStore fails subject metadata writes.
type failingStore struct {
	store.Store
}

func (failingStore) UpsertSubjectMetadata(context.Context, *catalog.Subject) error {
	return errors.New("connection reset")
}

func TestSubjectSyncer_RefreshesOnlyStaleCharacters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	subject := catalogtest.Subjects(1, 1, "2024-04-01")[0]
	fake := catalogtest.NewFakeClient(subject)
	fake.SetCharacters(1,
		catalog.Character{ID: 10, Name: "fresh"},
		catalog.Character{ID: 11, Name: "aged"},
		catalog.Character{ID: 12, Name: "new"},
	)

	st := &agedStore{Store: store.NewMemoryStore(), aged: map[int64]bool{11: true}}
	require.NoError(t, st.UpsertCharacter(ctx, &catalog.Character{ID: 10, Name: "fresh"}))
	require.NoError(t, st.UpsertCharacter(ctx, &catalog.Character{ID: 11, Name: "aged"}))

	syncer := sync.NewSubjectSyncer(fake, st)
	result, err := syncer.Sync(ctx, &subject, sync.SubjectOptions{CooldownDays: 30})
	require.NoError(t, err)

	assert.Equal(t, 2, result.CharactersProcessed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, fake.CharacterCalls())

	stored, err := st.FindSubject(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stored.Characters, 3)
}

func TestSubjectSyncer_SkipCharacters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	subject := catalogtest.Subjects(5, 1, "")[0]
	fake := catalogtest.NewFakeClient(subject)
	fake.SetCharacters(5, catalog.Character{ID: 50, Name: "x"})
	st := store.NewMemoryStore()

	result, err := sync.NewSubjectSyncer(fake, st).Sync(ctx, &subject, sync.SubjectOptions{SkipCharacters: true})
	require.NoError(t, err)
	assert.Zero(t, result.CharactersProcessed)
	assert.Zero(t, fake.RelatedCalls())

	_, err = st.FindSubject(ctx, 5)
	assert.NoError(t, err)
}

func TestSubjectSyncer_CharacterFailuresDoNotAbort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	subject := catalogtest.Subjects(1, 1, "2020-01-01")[0]
	fake := catalogtest.NewFakeClient(subject)
	fake.SetCharacters(1,
		catalog.Character{ID: 10, Name: "a"},
		catalog.Character{ID: 11, Name: "b"},
		catalog.Character{ID: 12, Name: "c"},
	)
	fake.CharacterHook = func(id int64) error {
		if id == 11 {
			return errors.New("HTTP 502")
		}
		return nil
	}

	result, err := sync.NewSubjectSyncer(fake, store.NewMemoryStore()).Sync(ctx, &subject, sync.SubjectOptions{CooldownDays: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CharactersProcessed)
	assert.Equal(t, []sync.EntityError{{ID: 11, Error: "HTTP 502"}}, result.Errors)
}

func TestSubjectSyncer_StopsBetweenCharacters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	subject := catalogtest.Subjects(1, 1, "2020-01-01")[0]
	fake := catalogtest.NewFakeClient(subject)
	fake.SetCharacters(1,
		catalog.Character{ID: 10, Name: "a"},
		catalog.Character{ID: 11, Name: "b"},
	)

	calls := 0
	result, err := sync.NewSubjectSyncer(fake, store.NewMemoryStore()).Sync(ctx, &subject, sync.SubjectOptions{
		ShouldStop: func() bool {
			calls++
			return calls > 1
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CharactersProcessed)
}

func TestSubjectSyncer_SyncIntoAccountsOutcome(t *testing.T) {
	t.Parallel()

	subjects := catalogtest.Subjects(1, 2, "2022-06-01")
	fake := catalogtest.NewFakeClient(subjects...)
	fake.SetCharacters(1, catalog.Character{ID: 10, Name: "a"})

	good := sync.NewSubjectSyncer(fake, store.NewMemoryStore())
	bad := sync.NewSubjectSyncer(fake, failingStore{Store: store.NewMemoryStore()})

	r := sync.NewRunner("test", "", func(ctx context.Context, run *sync.Run, _ sync.Options) error {
		assert.True(t, good.SyncInto(ctx, run, &subjects[0], sync.SubjectOptions{}))
		assert.False(t, bad.SyncInto(ctx, run, &subjects[1], sync.SubjectOptions{}))
		return nil
	})

	result, err := r.Execute(context.Background(), sync.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SubjectsProcessed)
	assert.Equal(t, 1, result.CharactersProcessed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(2), result.Errors[0].ID)
	assert.Contains(t, result.Errors[0].Error, "connection reset")
}
