package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStrategyNotFound is returned when no strategy is registered under a name.
	ErrStrategyNotFound = errors.New("strategy not found")

	// ErrAlreadyRunning is returned when a strategy is asked to run while a
	// previous run of the same strategy is still in flight.
	ErrAlreadyRunning = errors.New("strategy is already running")
)

// Options tune a single strategy run. Zero values select the strategy defaults.
type Options struct {
	// CooldownDays overrides the strategy's staleness threshold for characters.
	CooldownDays int `json:"cooldownDays,omitempty"`
	// BatchSize overrides the page size used when listing subjects.
	BatchSize int `json:"batchSize,omitempty"`
	// SkipCharacters syncs subject metadata only.
	SkipCharacters bool `json:"skipCharacters,omitempty"`
}

// Progress is a point-in-time snapshot of a run's advancement.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

func newProgress(current, total int) Progress {
	if current < 0 {
		current = 0
	}
	if total <= 0 {
		return Progress{Current: current, Total: 0}
	}
	if current > total {
		current = total
	}
	return Progress{
		Current:    current,
		Total:      total,
		Percentage: int(math.Round(100 * float64(current) / float64(total))),
	}
}

// EntityError is a failure attributed to a single entity. ID is 0 for
// failures not tied to an entity, such as a page fetch.
type EntityError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// Result summarises one completed run.
type Result struct {
	Strategy            string        `json:"strategy"`
	RunID               string        `json:"runId"`
	SubjectsProcessed   int           `json:"subjectsProcessed"`
	CharactersProcessed int           `json:"charactersProcessed"`
	Errors              []EntityError `json:"errors"`
	StartedAt           time.Time     `json:"startedAt"`
	Duration            time.Duration `json:"-"`
	DurationMs          int64         `json:"durationMs"`
	Stopped             bool          `json:"stopped"`

	// Err is the error that ended the run early, if any. It is also recorded in Errors.
	Err error `json:"-"`
}

// Strategy is one unit of synchronisation logic.
//
//go:generate mockgen -destination=mocks/mock_strategy.go -package=mocks github.com/stacklok/catalog-mirror/internal/sync Strategy
type Strategy interface {
	// Name identifies the strategy in the registry.
	Name() string
	// Description is a human readable summary.
	Description() string
	// Execute performs a run. It returns ErrAlreadyRunning if a run is in
	// flight; every other failure is reported through the Result.
	Execute(ctx context.Context, opts Options) (*Result, error)
	// Stop asks the current run to finish after the unit of work in progress.
	Stop()
	// IsRunning reports whether a run is in flight.
	IsRunning() bool
	// Progress returns a snapshot of the current run's progress.
	Progress() Progress
}

// WorkFunc is the strategy specific part of a run.
type WorkFunc func(ctx context.Context, run *Run, opts Options) error

// Runner implements the Strategy lifecycle around a WorkFunc. Concrete
// strategies are built by handing a Runner their selection logic.
type Runner struct {
	name        string
	description string
	work        WorkFunc

	running       atomic.Bool
	stopRequested atomic.Bool

	mu       stdsync.RWMutex
	progress Progress
	// stopCh is closed by the first Stop of the current run.
	stopCh chan struct{}
}

var _ Strategy = (*Runner)(nil)

// NewRunner creates a Strategy named name that runs work.
func NewRunner(name, description string, work WorkFunc) *Runner {
	return &Runner{
		name:        name,
		description: description,
		work:        work,
	}
}

// Name implements Strategy.
func (r *Runner) Name() string { return r.name }

// Description implements Strategy.
func (r *Runner) Description() string { return r.description }

// IsRunning implements Strategy.
func (r *Runner) IsRunning() bool { return r.running.Load() }

// Stop implements Strategy.
func (r *Runner) Stop() {
	if r.running.Load() {
		slog.Info("Stop requested", "strategy", r.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopRequested.Swap(true) && r.stopCh != nil {
		close(r.stopCh)
	}
}

// Progress implements Strategy.
func (r *Runner) Progress() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// Execute implements Strategy.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s: %w", r.name, ErrAlreadyRunning)
	}
	defer r.running.Store(false)

	r.mu.Lock()
	r.stopRequested.Store(false)
	r.stopCh = make(chan struct{})
	r.progress = Progress{}
	stopping := r.stopCh
	r.mu.Unlock()

	run := &Run{
		runner:   r,
		stopping: stopping,
		result: Result{
			Strategy:  r.name,
			RunID:     uuid.NewString(),
			StartedAt: time.Now(),
			Errors:    []EntityError{},
		},
	}

	logger := slog.With("strategy", r.name, "run_id", run.result.RunID)
	logger.Info("Strategy run started")

	if err := r.invoke(ctx, run, opts); err != nil {
		run.result.Err = err
		run.RecordError(0, err)
		logger.Error("Strategy run failed", "error", err)
	}

	run.result.Stopped = run.ShouldStop(ctx)
	run.result.Duration = time.Since(run.result.StartedAt)
	run.result.DurationMs = run.result.Duration.Milliseconds()

	logger.Info("Strategy run finished",
		"subjects", run.result.SubjectsProcessed,
		"characters", run.result.CharactersProcessed,
		"errors", len(run.result.Errors),
		"stopped", run.result.Stopped,
		"duration", run.result.Duration)

	result := run.result
	return &result, nil
}

// invoke runs the work function, converting a panic into an error.
func (r *Runner) invoke(ctx context.Context, run *Run, opts Options) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strategy %s panicked: %v", r.name, p)
		}
	}()
	return r.work(ctx, run, opts)
}

func (r *Runner) setProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = p
}

// Run is the bookkeeping handle a WorkFunc reports through. It is owned by
// the goroutine executing the run.
type Run struct {
	runner   *Runner
	stopping chan struct{}
	result   Result
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.result.RunID }

// Strategy returns the name of the strategy being run.
func (r *Run) Strategy() string { return r.runner.name }

// UpdateProgress publishes the run's progress. current is clamped to total.
func (r *Run) UpdateProgress(current, total int) {
	r.runner.setProgress(newProgress(current, total))
}

// AddSubjects counts processed subjects.
func (r *Run) AddSubjects(n int) { r.result.SubjectsProcessed += n }

// AddCharacters counts processed characters.
func (r *Run) AddCharacters(n int) { r.result.CharactersProcessed += n }

// RecordError appends a failure for entity id.
func (r *Run) RecordError(id int64, err error) {
	if err == nil {
		return
	}
	r.RecordErrorMessage(id, err.Error())
}

// RecordErrorMessage appends a failure message for entity id.
func (r *Run) RecordErrorMessage(id int64, message string) {
	r.result.Errors = append(r.result.Errors, EntityError{ID: id, Error: message})
}

// ShouldStop reports whether the run must wind down, either because Stop was
// called or because ctx is done.
func (r *Run) ShouldStop(ctx context.Context) bool {
	return r.runner.stopRequested.Load() || ctx.Err() != nil
}

// Stopping returns a channel that is closed once Stop is called for this run.
// It lets a run blocked in a wait react to a stop without polling.
func (r *Run) Stopping() <-chan struct{} { return r.stopping }
