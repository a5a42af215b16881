package strategies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/breaker"
	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/sync"
)

// NewDailyIncremental creates the strategy that mirrors subjects added
// upstream since the last run. It re-reads IncrementalBuffer already mirrored
// subjects so late edits near the boundary are not missed.
func NewDailyIncremental(deps Dependencies, settings Settings) *sync.Runner {
	settings = settings.withDefaults()
	s := newScanner(NameDailyIncremental, deps, settings)

	return sync.NewRunner(NameDailyIncremental,
		"Mirror newly listed subjects after the locally stored ones",
		func(ctx context.Context, run *sync.Run, opts sync.Options) error {
			filter := catalog.Filter{Type: settings.SubjectType}

			localTotal, err := deps.Store.CountSubjects(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to count local subjects: %w", err)
			}

			probe, err := s.fetchPage(ctx, run, breaker.New(settings.FailureThreshold), filter, 1, 0, 0)
			if errors.Is(err, errStopped) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read online total: %w", err)
			}

			start, end := incrementalWindow(localTotal, probe.Total, settings.IncrementalBuffer)
			slog.Info("Incremental window computed",
				"run_id", run.ID(),
				"local_total", localTotal,
				"online_total", probe.Total,
				"start_offset", start,
				"end_offset", end)

			if start >= end {
				run.UpdateProgress(0, 0)
				return nil
			}

			_, err = s.scan(ctx, run, window{
				filter:    filter,
				start:     start,
				end:       end,
				batchSize: batchSize(opts, settings),
				cooldown:  fixedCooldown(opts, settings.DailyCooldownDays),
			}, opts)
			return err
		})
}

// incrementalWindow returns the offsets [start, end) to scan.
func incrementalWindow(localTotal, onlineTotal, buffer int) (int, int) {
	return max(0, localTotal-buffer), onlineTotal
}
