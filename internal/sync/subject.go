package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/cooldown"
	"github.com/stacklok/catalog-mirror/internal/store"
)

// SubjectOptions control how a single subject is synchronised.
type SubjectOptions struct {
	// CooldownDays is the staleness threshold for the subject's characters.
	CooldownDays int
	// SkipCharacters limits the sync to subject metadata.
	SkipCharacters bool
	// ShouldStop is polled between characters.
	ShouldStop func() bool
}

// SubjectResult reports the character work done for one subject.
type SubjectResult struct {
	CharactersProcessed int
	Errors              []EntityError
}

// SubjectSyncer mirrors one subject and its stale characters into the store.
type SubjectSyncer struct {
	catalog    catalog.Client
	store      store.Store
	characters cooldown.Lookup
}

// NewSubjectSyncer creates a SubjectSyncer. client is expected to be rate limited.
func NewSubjectSyncer(client catalog.Client, st store.Store) *SubjectSyncer {
	return &SubjectSyncer{
		catalog:    client,
		store:      st,
		characters: store.CharacterLookup(st),
	}
}

// Sync upserts the subject's metadata and, unless skipped, replaces its
// related character list and refreshes every character older than the
// cooldown. A failing character is reported in the result and does not stop
// its siblings. The returned error covers the subject itself.
func (s *SubjectSyncer) Sync(ctx context.Context, subject *catalog.Subject, opts SubjectOptions) (*SubjectResult, error) {
	result := &SubjectResult{}

	if err := s.store.UpsertSubjectMetadata(ctx, subject); err != nil {
		return result, fmt.Errorf("failed to store subject %d: %w", subject.ID, err)
	}
	if opts.SkipCharacters {
		return result, nil
	}

	related, err := s.catalog.ListRelatedCharacters(ctx, subject.ID)
	if err != nil {
		return result, fmt.Errorf("failed to list characters of subject %d: %w", subject.ID, err)
	}
	if err := s.store.UpsertRelatedList(ctx, subject.ID, related); err != nil {
		return result, fmt.Errorf("failed to store characters of subject %d: %w", subject.ID, err)
	}

	for _, rc := range related {
		if opts.ShouldStop != nil && opts.ShouldStop() {
			break
		}
		if !cooldown.NeedsRefresh(ctx, s.characters, rc.ID, opts.CooldownDays) {
			continue
		}

		character, err := s.catalog.GetCharacter(ctx, rc.ID)
		if err == nil {
			err = s.store.UpsertCharacter(ctx, character)
		}
		if err != nil {
			slog.Warn("Failed to refresh character", "subject_id", subject.ID, "character_id", rc.ID, "error", err)
			result.Errors = append(result.Errors, EntityError{ID: rc.ID, Error: err.Error()})
			continue
		}
		result.CharactersProcessed++
	}

	return result, nil
}

// SyncInto synchronises subject and accounts the outcome on run. It reports
// whether the subject itself was stored.
func (s *SubjectSyncer) SyncInto(ctx context.Context, run *Run, subject *catalog.Subject, opts SubjectOptions) bool {
	if opts.ShouldStop == nil {
		opts.ShouldStop = func() bool { return run.ShouldStop(ctx) }
	}

	result, err := s.Sync(ctx, subject, opts)
	if result != nil {
		run.AddCharacters(result.CharactersProcessed)
		run.result.Errors = append(run.result.Errors, result.Errors...)
	}
	if err != nil {
		slog.Warn("Failed to sync subject", "strategy", run.Strategy(), "subject_id", subject.ID, "error", err)
		run.RecordError(subject.ID, err)
		return false
	}
	run.AddSubjects(1)
	return true
}
