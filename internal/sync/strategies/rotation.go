package strategies

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/sync/rotation"
)

// NewMonthlyRotation creates the strategy that refreshes one of the thirteen
// rotation buckets per run. Month buckets are listed upstream with a month
// filter; the undated bucket is read from the local store because the catalog
// cannot filter on a missing date. The cursor advances after every run.
func NewMonthlyRotation(deps Dependencies, settings Settings) *sync.Runner {
	settings = settings.withDefaults()
	s := newScanner(NameMonthlyRotation, deps, settings)

	return sync.NewRunner(NameMonthlyRotation,
		"Refresh one calendar month, or the undated subjects, per run",
		func(ctx context.Context, run *sync.Run, opts sync.Options) error {
			month, err := deps.Cursor.Current(ctx)
			if err != nil {
				return fmt.Errorf("failed to read rotation cursor: %w", err)
			}
			slog.Info("Rotating bucket",
				"run_id", run.ID(),
				"month", month,
				"bucket", rotation.DisplayName(month))

			if month == rotation.Undated {
				err = s.syncUndated(ctx, run, opts)
			} else {
				_, err = s.scan(ctx, run, window{
					filter:    catalog.Filter{Type: settings.SubjectType, Month: month},
					batchSize: batchSize(opts, settings),
					cooldown:  ageCooldown(opts, deps.Policy),
				}, opts)
			}

			next, advErr := deps.Cursor.Advance(context.WithoutCancel(ctx))
			if advErr != nil {
				run.RecordError(0, fmt.Errorf("failed to advance rotation cursor: %w", advErr))
			} else {
				slog.Info("Rotation cursor advanced", "run_id", run.ID(), "next", rotation.DisplayName(next))
			}
			return err
		})
}

// syncUndated refreshes every stored subject without a usable date.
func (s *scanner) syncUndated(ctx context.Context, run *sync.Run, opts sync.Options) error {
	ids, err := s.deps.Store.FindSubjectIDsMissingDate(ctx, catalog.Filter{Type: s.settings.SubjectType})
	if err != nil {
		return fmt.Errorf("failed to list undated subjects: %w", err)
	}

	cooldownFor := ageCooldown(opts, s.deps.Policy)
	run.UpdateProgress(0, len(ids))
	for i, id := range ids {
		if run.ShouldStop(ctx) {
			break
		}
		subject, err := s.deps.Catalog.GetSubject(ctx, id)
		if err != nil {
			slog.Warn("Failed to fetch undated subject", "subject_id", id, "error", err)
			run.RecordError(id, err)
		} else {
			s.syncer.SyncInto(ctx, run, subject, sync.SubjectOptions{
				CooldownDays:   cooldownFor(subject),
				SkipCharacters: opts.SkipCharacters,
			})
		}
		run.UpdateProgress(i+1, len(ids))
	}
	return nil
}
