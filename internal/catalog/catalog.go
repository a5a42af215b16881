// Package catalog defines the upstream catalog API consumed by the sync
// engine and an HTTP implementation of it.
package catalog

import (
	"context"
	"encoding/json"
	"strings"
)

// SubjectType is the upstream subject category.
type SubjectType int

// Subject categories understood by the upstream API.
const (
	SubjectTypeBook  SubjectType = 1
	SubjectTypeAnime SubjectType = 2
	SubjectTypeMusic SubjectType = 3
	SubjectTypeGame  SubjectType = 4
	SubjectTypeReal  SubjectType = 6
)

// Subject is a catalog entry. Only the fields the engine makes decisions on
// are decoded; the full upstream document is kept in Raw.
type Subject struct {
	ID   int64           `json:"id"`
	Name string          `json:"name,omitempty"`
	Type SubjectType     `json:"type,omitempty"`
	Date string          `json:"date,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

// HasDate reports whether the subject carries a non-empty date.
func (s *Subject) HasDate() bool {
	return strings.TrimSpace(s.Date) != ""
}

// Character is a character detail record.
type Character struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Raw  json.RawMessage `json:"-"`
}

// RelatedCharacter is a character reference attached to a subject.
type RelatedCharacter struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
}

// Filter narrows a subject listing. Zero values mean "no restriction".
type Filter struct {
	Type  SubjectType
	Year  int
	Month int
}

// Page is one page of a subject listing.
type Page struct {
	Items  []Subject
	Total  int
	Limit  int
	Offset int
}

// Client is the upstream catalog API.
type Client interface {
	// ListSubjects returns the page of subjects matching filter starting at offset.
	ListSubjects(ctx context.Context, filter Filter, limit, offset int) (*Page, error)
	// GetSubject returns a single subject.
	GetSubject(ctx context.Context, id int64) (*Subject, error)
	// ListRelatedCharacters returns the characters attached to a subject.
	ListRelatedCharacters(ctx context.Context, subjectID int64) ([]RelatedCharacter, error)
	// GetCharacter returns a character detail record.
	GetCharacter(ctx context.Context, id int64) (*Character, error)
}
