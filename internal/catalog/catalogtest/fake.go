// Package catalogtest provides an in-memory catalog.Client for tests.
package catalogtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/cooldown"
	"github.com/stacklok/catalog-mirror/internal/httpclient"
)

// ListCall records one ListSubjects invocation.
type ListCall struct {
	Filter catalog.Filter
	Limit  int
	Offset int
}

// FakeClient serves subjects and characters from memory.
type FakeClient struct {
	mu sync.Mutex

	subjects   []catalog.Subject
	related    map[int64][]catalog.RelatedCharacter
	characters map[int64]catalog.Character

	// ListHook, when set, is consulted before every ListSubjects call. A
	// non-nil error fails the call.
	ListHook func(call ListCall) error
	// CharacterHook, when set, is consulted before every GetCharacter call.
	CharacterHook func(id int64) error

	listCalls      []ListCall
	subjectCalls   int
	relatedCalls   int
	characterCalls int
}

// NewFakeClient creates a FakeClient serving subjects in the given order.
func NewFakeClient(subjects ...catalog.Subject) *FakeClient {
	return &FakeClient{
		subjects:   subjects,
		related:    make(map[int64][]catalog.RelatedCharacter),
		characters: make(map[int64]catalog.Character),
	}
}

// Subjects generates n subjects with consecutive ids starting at firstID.
func Subjects(firstID int64, n int, date string) []catalog.Subject {
	out := make([]catalog.Subject, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + int64(i)
		out = append(out, catalog.Subject{
			ID:   id,
			Name: fmt.Sprintf("subject-%d", id),
			Type: catalog.SubjectTypeAnime,
			Date: date,
			Raw:  []byte(fmt.Sprintf(`{"id":%d,"date":%q}`, id, date)),
		})
	}
	return out
}

// AddSubjects appends subjects to the catalog.
func (f *FakeClient) AddSubjects(subjects ...catalog.Subject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subjects...)
}

// SetCharacters attaches characters to a subject and registers their details.
func (f *FakeClient) SetCharacters(subjectID int64, characters ...catalog.Character) {
	f.mu.Lock()
	defer f.mu.Unlock()

	related := make([]catalog.RelatedCharacter, 0, len(characters))
	for _, c := range characters {
		related = append(related, catalog.RelatedCharacter{ID: c.ID, Name: c.Name, Relation: "主角"})
		f.characters[c.ID] = c
	}
	f.related[subjectID] = related
}

// ListSubjects implements catalog.Client.
func (f *FakeClient) ListSubjects(_ context.Context, filter catalog.Filter, limit, offset int) (*catalog.Page, error) {
	f.mu.Lock()
	call := ListCall{Filter: filter, Limit: limit, Offset: offset}
	f.listCalls = append(f.listCalls, call)
	hook := f.ListHook
	matching := f.matching(filter)
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return nil, err
		}
	}

	page := &catalog.Page{Total: len(matching), Limit: limit, Offset: offset}
	if offset < len(matching) {
		end := min(offset+limit, len(matching))
		page.Items = append(page.Items, matching[offset:end]...)
	}
	return page, nil
}

// GetSubject implements catalog.Client.
func (f *FakeClient) GetSubject(_ context.Context, id int64) (*catalog.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subjectCalls++
	for i := range f.subjects {
		if f.subjects[i].ID == id {
			s := f.subjects[i]
			return &s, nil
		}
	}
	return nil, httpclient.NewHTTPError(404, fmt.Sprintf("/v0/subjects/%d", id), "Not Found")
}

// ListRelatedCharacters implements catalog.Client.
func (f *FakeClient) ListRelatedCharacters(_ context.Context, subjectID int64) ([]catalog.RelatedCharacter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.relatedCalls++
	return append([]catalog.RelatedCharacter(nil), f.related[subjectID]...), nil
}

// GetCharacter implements catalog.Client.
func (f *FakeClient) GetCharacter(_ context.Context, id int64) (*catalog.Character, error) {
	f.mu.Lock()
	f.characterCalls++
	hook := f.CharacterHook
	c, ok := f.characters[id]
	f.mu.Unlock()

	if hook != nil {
		if err := hook(id); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, httpclient.NewHTTPError(404, fmt.Sprintf("/v0/characters/%d", id), "Not Found")
	}
	return &c, nil
}

// ListCalls returns the recorded ListSubjects calls.
func (f *FakeClient) ListCalls() []ListCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ListCall(nil), f.listCalls...)
}

// SubjectCalls returns the number of GetSubject calls.
func (f *FakeClient) SubjectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subjectCalls
}

// RelatedCalls returns the number of ListRelatedCharacters calls.
func (f *FakeClient) RelatedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relatedCalls
}

// CharacterCalls returns the number of GetCharacter calls.
func (f *FakeClient) CharacterCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.characterCalls
}

func (f *FakeClient) matching(filter catalog.Filter) []catalog.Subject {
	if filter.Year == 0 && filter.Month == 0 && filter.Type == 0 {
		return append([]catalog.Subject(nil), f.subjects...)
	}

	var out []catalog.Subject
	for _, s := range f.subjects {
		if filter.Type != 0 && s.Type != 0 && s.Type != filter.Type {
			continue
		}
		if filter.Year != 0 || filter.Month != 0 {
			date, ok := cooldown.ParseDate(s.Date)
			if !ok {
				continue
			}
			if filter.Year != 0 && date.Year() != filter.Year {
				continue
			}
			if filter.Month != 0 && int(date.Month()) != filter.Month {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
