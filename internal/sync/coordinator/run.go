package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/status"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
)

// startRun starts a scheduled run in the background and records it as running
func (c *defaultCoordinator) startRun(ctx context.Context, s Schedule, previous *status.RunStatus) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	attempt := c.now()
	record := *previous
	record.Phase = status.RunPhaseRunning
	record.Message = "Run in progress"
	record.LastAttempt = &attempt

	c.runs.Add(1)
	err := c.manager.Start(ctx, s.Strategy, s.Options, func(result *pkgsync.Result, err error) {
		defer c.runs.Done()
		c.finishRun(ctx, s.Strategy, record, result, err)
	})
	if err != nil {
		c.runs.Done()
		if errors.Is(err, pkgsync.ErrAlreadyRunning) {
			slog.Info("Skipping scheduled run, strategy already running", "strategy", s.Strategy)
			return
		}
		slog.Error("Failed to start scheduled run", "strategy", s.Strategy, "error", err)
		return
	}

	slog.Info("Started scheduled run", "strategy", s.Strategy, "interval", s.Interval)
	if err := c.statusSvc.SaveStatus(ctx, s.Strategy, &record); err != nil {
		slog.Warn("Failed to persist running status", "strategy", s.Strategy, "error", err)
	}
}

// finishRun persists the outcome of a scheduled run
func (c *defaultCoordinator) finishRun(
	ctx context.Context,
	strategy string,
	record status.RunStatus,
	result *pkgsync.Result,
	runErr error,
) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	// The final status is written even when the coordinator is shutting down.
	ctx = context.WithoutCancel(ctx)
	now := c.now()

	switch {
	case runErr != nil:
		record.Phase = status.RunPhaseFailed
		record.Message = runErr.Error()
		record.AttemptCount++
	case result.Err != nil:
		record.Phase = status.RunPhaseFailed
		record.Message = result.Err.Error()
		record.AttemptCount++
	case result.Stopped:
		record.Phase = status.RunPhaseStopped
		record.Message = fmt.Sprintf("Run stopped after %d subjects", result.SubjectsProcessed)
	default:
		record.Phase = status.RunPhaseComplete
		record.Message = "Run completed"
		record.LastSuccess = &now
		record.AttemptCount = 0
	}
	if result != nil {
		record.RunID = result.RunID
		record.SubjectsProcessed = result.SubjectsProcessed
		record.CharactersProcessed = result.CharactersProcessed
		record.ErrorCount = len(result.Errors)
	}

	if record.Phase == status.RunPhaseFailed {
		slog.Error("Scheduled run failed",
			"strategy", strategy,
			"run_id", record.RunID,
			"attempts", record.AttemptCount,
			"error", record.Message)
	} else {
		slog.Info("Scheduled run finished",
			"strategy", strategy,
			"run_id", record.RunID,
			"phase", record.Phase,
			"subjects", record.SubjectsProcessed,
			"errors", record.ErrorCount)
	}

	if err := c.statusSvc.SaveStatus(ctx, strategy, &record); err != nil {
		slog.Error("Error updating run status", "strategy", strategy, "error", err)
	}
}
