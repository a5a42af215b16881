package strategies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/catalog-mirror/internal/breaker"
	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/checkpoint"
	"github.com/stacklok/catalog-mirror/internal/notify"
	"github.com/stacklok/catalog-mirror/internal/sync"
)

// window is one paginated scan over a subject listing.
type window struct {
	filter    catalog.Filter
	start     int
	end       int // exclusive; 0 follows the total reported by every page
	batchSize int

	// accept filters subjects within a page. Rejected subjects still advance the offset.
	accept   func(*catalog.Subject) bool
	cooldown func(*catalog.Subject) int

	// checkpoint, when set, receives the offset after every page.
	checkpoint *checkpoint.Store

	// progress publishes the scan position; nil reports progress relative to start.
	progress func(offset, end int)
}

// scanned is where a scan ended.
type scanned struct {
	offset int
	total  int
}

// scanner runs windows for one strategy.
type scanner struct {
	name     string
	deps     Dependencies
	settings Settings
	syncer   *sync.SubjectSyncer
}

func newScanner(name string, deps Dependencies, settings Settings) *scanner {
	return &scanner{
		name:     name,
		deps:     deps,
		settings: settings,
		syncer:   sync.NewSubjectSyncer(deps.Catalog, deps.Store),
	}
}

// scan walks w page by page in offset order until the end of the window, an
// empty page, a stop request, or a circuit breaker trip.
func (s *scanner) scan(ctx context.Context, run *sync.Run, w window, opts sync.Options) (scanned, error) {
	cb := breaker.New(s.settings.FailureThreshold)
	offset, end := w.start, w.end
	report := w.progress
	if report == nil {
		report = func(offset, end int) { run.UpdateProgress(offset-w.start, max(0, end-w.start)) }
	}

	for !run.ShouldStop(ctx) {
		if end > 0 && offset >= end {
			break
		}
		limit := w.batchSize
		if end > 0 {
			limit = min(limit, end-offset)
		}

		page, err := s.fetchPage(ctx, run, cb, w.filter, limit, offset, end)
		if err != nil {
			if run.ShouldStop(ctx) && !isTripped(err) {
				break
			}
			return scanned{offset: offset, total: end}, err
		}
		if w.end == 0 {
			end = page.Total
		}
		if len(page.Items) == 0 {
			break
		}

		for i := range page.Items {
			if run.ShouldStop(ctx) {
				break
			}
			subject := &page.Items[i]
			if w.accept == nil || w.accept(subject) {
				s.syncer.SyncInto(ctx, run, subject, sync.SubjectOptions{
					CooldownDays:   w.cooldown(subject),
					SkipCharacters: opts.SkipCharacters,
				})
			}
			offset++
			report(offset, end)
		}

		s.saveCheckpoint(ctx, run, w.checkpoint, offset)
	}

	return scanned{offset: offset, total: end}, nil
}

// errStopped ends a page retry loop after a stop request.
var errStopped = errors.New("stop requested")

// fetchPage lists one page, retrying the same offset after a fixed pause.
// Every failure is recorded on the run and fed to the breaker; once it trips
// the operator is notified and a *breaker.TrippedError is returned. A stop
// request ends the retries with errStopped, also while waiting for the next
// attempt, and never trips the breaker.
func (s *scanner) fetchPage(
	ctx context.Context,
	run *sync.Run,
	cb *breaker.CircuitBreaker,
	filter catalog.Filter,
	limit, offset, total int,
) (*catalog.Page, error) {
	retryCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-run.Stopping():
			cancel(errStopped)
		case <-retryCtx.Done():
		}
	}()

	op := func() (*catalog.Page, error) {
		if run.ShouldStop(ctx) {
			return nil, backoff.Permanent(errStopped)
		}
		page, err := s.deps.Catalog.ListSubjects(ctx, filter, limit, offset)
		if err == nil {
			cb.RecordSuccess()
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}

		run.RecordError(0, fmt.Errorf("failed to fetch page at offset %d: %w", offset, err))
		if run.ShouldStop(ctx) {
			return nil, backoff.Permanent(errStopped)
		}
		if cb.RecordFailure(err) {
			return nil, backoff.Permanent(&breaker.TrippedError{
				Offset:   offset,
				Total:    total,
				Failures: cb.Failures(),
				Err:      err,
			})
		}
		return nil, err
	}

	page, err := backoff.Retry(retryCtx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.settings.FailureBackoff)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Page fetch failed, retrying",
				"strategy", s.name,
				"offset", offset,
				"failures", cb.Failures(),
				"retry_in", next,
				"error", err)
		}),
	)
	if err != nil {
		var tripped *breaker.TrippedError
		if errors.As(err, &tripped) {
			s.alert(ctx, run, tripped)
		}
		return nil, err
	}
	return page, nil
}

// alert notifies the operator once per trip.
func (s *scanner) alert(ctx context.Context, run *sync.Run, tripped *breaker.TrippedError) {
	slog.Error("Circuit breaker tripped, aborting scan",
		"strategy", s.name,
		"run_id", run.ID(),
		"offset", tripped.Offset,
		"total", tripped.Total,
		"failures", tripped.Failures,
		"error", tripped.Err)

	s.deps.Metrics.RecordBreakerTrip(ctx, s.name)
	notify.Send(context.WithoutCancel(ctx), s.deps.Notifier, s.settings.NotifyChannel,
		fmt.Sprintf("[catalog-mirror] %s aborted (run %s): %d consecutive failures at offset %d/%d, last error: %v",
			s.name, run.ID(), tripped.Failures, tripped.Offset, tripped.Total, tripped.Err))
}

func (s *scanner) saveCheckpoint(ctx context.Context, run *sync.Run, cp *checkpoint.Store, offset int) {
	if cp == nil {
		return
	}
	if err := cp.Save(context.WithoutCancel(ctx), offset); err != nil {
		slog.Warn("Failed to save checkpoint", "strategy", s.name, "offset", offset, "error", err)
		run.RecordError(0, err)
	}
}

func isTripped(err error) bool {
	var tripped *breaker.TrippedError
	return errors.As(err, &tripped)
}
