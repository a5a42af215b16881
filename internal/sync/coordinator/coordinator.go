package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	stdsync "sync"
	"time"

	"github.com/stacklok/catalog-mirror/internal/status"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
)

const (
	// basePollingInterval is the base interval at which the coordinator checks for due schedules
	basePollingInterval = time.Minute
	// pollingJitter is the maximum random offset applied to the polling interval
	pollingJitter = 10 * time.Second
)

// Schedule runs a strategy every Interval.
type Schedule struct {
	Strategy string
	Interval time.Duration
	Options  pkgsync.Options
}

// ScheduleStatus reports a schedule and the outcome of its last run.
type ScheduleStatus struct {
	Strategy string            `json:"strategy"`
	Interval string            `json:"interval"`
	NextRun  *time.Time        `json:"nextRun,omitempty"`
	Last     *status.RunStatus `json:"last"`
}

// Coordinator runs the configured schedules in the background
type Coordinator interface {
	// Start begins background scheduling.
	// Blocks until context is cancelled or the schedules are invalid
	Start(ctx context.Context) error

	// Stop stops scheduling and waits for scheduled runs to return
	Stop() error

	// Status reports every schedule in configuration order
	Status(ctx context.Context) ([]ScheduleStatus, error)
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager   pkgsync.Manager
	statusSvc status.Persistence
	schedules []Schedule

	pollInterval time.Duration
	pollJitter   time.Duration
	now          func() time.Time

	// Lifecycle management
	mu         stdsync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
	runs       stdsync.WaitGroup

	// statusMu orders the "Running" write of a run before its final write
	statusMu stdsync.Mutex
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithPollingInterval overrides the polling interval and its jitter
func WithPollingInterval(interval, jitter time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.pollInterval = interval
		c.pollJitter = jitter
	}
}

// WithClock overrides the clock used to decide whether a schedule is due
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a new coordinator with injected dependencies
func New(
	manager pkgsync.Manager,
	statusSvc status.Persistence,
	schedules []Schedule,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		manager:      manager,
		statusSvc:    statusSvc,
		schedules:    schedules,
		pollInterval: basePollingInterval,
		pollJitter:   pollingJitter,
		now:          time.Now,
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// calculatePollingInterval returns the polling interval with a random jitter applied
// so that several instances sharing a store do not poll in lockstep.
func (c *defaultCoordinator) calculatePollingInterval() time.Duration {
	if c.pollJitter <= 0 {
		return c.pollInterval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*c.pollJitter))) - c.pollJitter
	return max(c.pollInterval+jitterOffset, time.Millisecond)
}

// Start begins background scheduling
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting background sync coordinator", "schedule_count", len(c.schedules))

	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.runs.Wait()
		close(c.done)
		slog.Info("Background sync coordinator shut down")
	}()

	if err := c.validateSchedules(); err != nil {
		return err
	}
	c.recoverInterruptedRuns(coordCtx)

	pollingInterval := c.calculatePollingInterval()
	slog.Info("Configured coordinator polling interval",
		"base_interval", c.pollInterval,
		"actual_interval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	c.processDueSchedules(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.processDueSchedules(coordCtx)
			ticker.Reset(c.calculatePollingInterval())
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// Status reports every schedule in configuration order
func (c *defaultCoordinator) Status(ctx context.Context) ([]ScheduleStatus, error) {
	names := make([]string, 0, len(c.schedules))
	for _, s := range c.schedules {
		names = append(names, s.Strategy)
	}
	all, err := c.statusSvc.LoadAllStatus(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule status: %w", err)
	}

	out := make([]ScheduleStatus, 0, len(c.schedules))
	for _, s := range c.schedules {
		last := all[s.Strategy]
		entry := ScheduleStatus{
			Strategy: s.Strategy,
			Interval: s.Interval.String(),
			Last:     last,
		}
		if due := last.DueAt(s.Interval); !due.IsZero() {
			entry.NextRun = &due
		}
		out = append(out, entry)
	}
	return out, nil
}

// validateSchedules rejects schedules naming unregistered strategies
func (c *defaultCoordinator) validateSchedules() error {
	registered := make(map[string]bool)
	for _, name := range c.manager.Names() {
		registered[name] = true
	}

	var errs []error
	for _, s := range c.schedules {
		if !registered[s.Strategy] {
			errs = append(errs, fmt.Errorf("schedule %q: %w", s.Strategy, pkgsync.ErrStrategyNotFound))
		}
		if s.Interval <= 0 {
			errs = append(errs, fmt.Errorf("schedule %q: interval must be positive", s.Strategy))
		}
	}
	return errors.Join(errs...)
}

// recoverInterruptedRuns marks runs left "Running" by a previous process as failed
func (c *defaultCoordinator) recoverInterruptedRuns(ctx context.Context) {
	for _, s := range c.schedules {
		st, err := c.statusSvc.LoadStatus(ctx, s.Strategy)
		if err != nil {
			slog.Error("Error loading run status", "strategy", s.Strategy, "error", err)
			continue
		}
		if st.Phase != status.RunPhaseRunning {
			continue
		}

		slog.Warn("Marking interrupted run as failed", "strategy", s.Strategy, "run_id", st.RunID)
		st.Phase = status.RunPhaseFailed
		st.Message = "Run interrupted by shutdown"
		st.AttemptCount++
		if err := c.statusSvc.SaveStatus(ctx, s.Strategy, st); err != nil {
			slog.Error("Error updating run status", "strategy", s.Strategy, "error", err)
		}
	}
}

// processDueSchedules starts every schedule whose interval has elapsed
func (c *defaultCoordinator) processDueSchedules(ctx context.Context) {
	for _, s := range c.schedules {
		if ctx.Err() != nil {
			return
		}

		st, err := c.statusSvc.LoadStatus(ctx, s.Strategy)
		if err != nil {
			slog.Error("Error loading run status", "strategy", s.Strategy, "error", err)
			continue
		}
		if c.now().Before(st.DueAt(s.Interval)) {
			slog.Debug("Schedule not due", "strategy", s.Strategy, "due_at", st.DueAt(s.Interval))
			continue
		}

		c.startRun(ctx, s, st)
	}
}
