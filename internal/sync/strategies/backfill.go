package strategies

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/sync"
)

// NewFullBackfill creates the strategy that walks the whole catalog. Its
// offset is checkpointed after every page so an aborted or stopped run
// resumes where it left off. The checkpoint is cleared once the walk
// completes.
func NewFullBackfill(deps Dependencies, settings Settings) *sync.Runner {
	settings = settings.withDefaults()
	s := newScanner(NameFullBackfill, deps, settings)

	return sync.NewRunner(NameFullBackfill,
		"Walk the whole catalog, resuming from the saved checkpoint",
		func(ctx context.Context, run *sync.Run, opts sync.Options) error {
			start, err := deps.Checkpoint.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load checkpoint: %w", err)
			}
			if start > 0 {
				slog.Info("Resuming backfill from checkpoint", "run_id", run.ID(), "offset", start)
			}

			end, err := s.scan(ctx, run, window{
				filter:     catalog.Filter{Type: settings.SubjectType},
				start:      start,
				batchSize:  batchSize(opts, settings),
				cooldown:   ageCooldown(opts, deps.Policy),
				checkpoint: deps.Checkpoint,
				progress: func(offset, total int) {
					run.UpdateProgress(offset, total)
				},
			}, opts)
			if err != nil {
				return err
			}
			if run.ShouldStop(ctx) {
				slog.Info("Backfill stopped, checkpoint kept", "run_id", run.ID(), "offset", end.offset)
				return nil
			}

			if err := deps.Checkpoint.Clear(context.WithoutCancel(ctx)); err != nil {
				run.RecordError(0, fmt.Errorf("failed to clear checkpoint: %w", err))
			}
			slog.Info("Backfill completed", "run_id", run.ID(), "offset", end.offset, "total", end.total)
			return nil
		})
}
