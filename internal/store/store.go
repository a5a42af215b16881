// Package store is the local document store the catalog is mirrored into.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/cooldown"
)

// ErrNotFound is returned when a record does not exist in the store.
var ErrNotFound = errors.New("record not found")

// Subject is a stored subject document.
type Subject struct {
	ID         int64                      `json:"id"`
	Type       catalog.SubjectType        `json:"type,omitempty"`
	Name       string                     `json:"name,omitempty"`
	Date       string                     `json:"date,omitempty"`
	Data       json.RawMessage            `json:"data,omitempty"`
	Characters []catalog.RelatedCharacter `json:"characters,omitempty"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
}

// Character is a stored character document.
type Character struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Stats summarises the mirrored data set.
type Stats struct {
	Subjects    int64      `json:"subjects"`
	Characters  int64      `json:"characters"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Store holds mirrored subjects and characters. Upserts are keyed by id and
// idempotent.
type Store interface {
	// UpsertSubjectMetadata writes the subject document without touching its
	// stored character list.
	UpsertSubjectMetadata(ctx context.Context, subject *catalog.Subject) error
	// UpsertRelatedList replaces the character list of a subject.
	UpsertRelatedList(ctx context.Context, subjectID int64, related []catalog.RelatedCharacter) error
	// FindSubject returns ErrNotFound when the subject is not stored.
	FindSubject(ctx context.Context, id int64) (*Subject, error)
	// UpsertCharacter writes a character document.
	UpsertCharacter(ctx context.Context, character *catalog.Character) error
	// FindCharacter returns ErrNotFound when the character is not stored.
	FindCharacter(ctx context.Context, id int64) (*Character, error)
	// CountSubjects counts stored subjects matching filter.
	CountSubjects(ctx context.Context, filter catalog.Filter) (int, error)
	// FindSubjectIDsMissingDate lists ids of stored subjects without a date, in id order.
	FindSubjectIDsMissingDate(ctx context.Context, filter catalog.Filter) ([]int64, error)
	// Stats summarises the store.
	Stats(ctx context.Context) (*Stats, error)
}

// CharacterLookup adapts a Store to a cooldown.Lookup over characters.
func CharacterLookup(s Store) cooldown.Lookup {
	return func(ctx context.Context, id int64) (time.Time, error) {
		c, err := s.FindCharacter(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return time.Time{}, cooldown.ErrRecordNotFound
			}
			return time.Time{}, fmt.Errorf("failed to find character %d: %w", id, err)
		}
		return c.UpdatedAt, nil
	}
}

// SubjectLookup adapts a Store to a cooldown.Lookup over subjects.
func SubjectLookup(s Store) cooldown.Lookup {
	return func(ctx context.Context, id int64) (time.Time, error) {
		subject, err := s.FindSubject(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return time.Time{}, cooldown.ErrRecordNotFound
			}
			return time.Time{}, fmt.Errorf("failed to find subject %d: %w", id, err)
		}
		return subject.UpdatedAt, nil
	}
}

// matches reports whether a stored subject satisfies filter.
func matches(s *Subject, filter catalog.Filter) bool {
	if filter.Type != 0 && s.Type != filter.Type {
		return false
	}
	if filter.Year == 0 && filter.Month == 0 {
		return true
	}
	date, ok := cooldown.ParseDate(s.Date)
	if !ok {
		return false
	}
	if filter.Year != 0 && date.Year() != filter.Year {
		return false
	}
	return filter.Month == 0 || int(date.Month()) == filter.Month
}
