package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/catalog-mirror/internal/catalog"
)

type memoryStore struct {
	mu         sync.RWMutex
	subjects   map[int64]*Subject
	characters map[int64]*Character
	now        func() time.Time
}

// NewMemoryStore creates an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{
		subjects:   make(map[int64]*Subject),
		characters: make(map[int64]*Character),
		now:        time.Now,
	}
}

func (m *memoryStore) UpsertSubjectMetadata(_ context.Context, subject *catalog.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.subjects[subject.ID]
	if !ok {
		stored = &Subject{ID: subject.ID}
		m.subjects[subject.ID] = stored
	}
	stored.Type = subject.Type
	stored.Name = subject.Name
	stored.Date = subject.Date
	stored.Data = slices.Clone(subject.Raw)
	stored.UpdatedAt = m.now()
	return nil
}

func (m *memoryStore) UpsertRelatedList(_ context.Context, subjectID int64, related []catalog.RelatedCharacter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.subjects[subjectID]
	if !ok {
		stored = &Subject{ID: subjectID}
		m.subjects[subjectID] = stored
	}
	stored.Characters = slices.Clone(related)
	stored.UpdatedAt = m.now()
	return nil
}

func (m *memoryStore) FindSubject(_ context.Context, id int64) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *stored
	out.Characters = slices.Clone(stored.Characters)
	return &out, nil
}

func (m *memoryStore) UpsertCharacter(_ context.Context, character *catalog.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.characters[character.ID] = &Character{
		ID:        character.ID,
		Name:      character.Name,
		Data:      slices.Clone(character.Raw),
		UpdatedAt: m.now(),
	}
	return nil
}

func (m *memoryStore) FindCharacter(_ context.Context, id int64) (*Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.characters[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *stored
	return &out, nil
}

func (m *memoryStore) CountSubjects(_ context.Context, filter catalog.Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.subjects {
		if matches(s, filter) {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) FindSubjectIDsMissingDate(_ context.Context, filter catalog.Filter) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id, s := range m.subjects {
		if filter.Type != 0 && s.Type != filter.Type {
			continue
		}
		if strings.TrimSpace(s.Date) == "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		Subjects:   int64(len(m.subjects)),
		Characters: int64(len(m.characters)),
	}
	var last time.Time
	for _, s := range m.subjects {
		if s.UpdatedAt.After(last) {
			last = s.UpdatedAt
		}
	}
	for _, c := range m.characters {
		if c.UpdatedAt.After(last) {
			last = c.UpdatedAt
		}
	}
	if !last.IsZero() {
		stats.LastUpdated = &last
	}
	return stats, nil
}
