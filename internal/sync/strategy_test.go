package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  int
		total    int
		expected Progress
	}{
		{name: "unknown total", current: 5, total: 0, expected: Progress{Current: 5}},
		{name: "halfway", current: 55, total: 110, expected: Progress{Current: 55, Total: 110, Percentage: 50}},
		{name: "rounds", current: 2, total: 3, expected: Progress{Current: 2, Total: 3, Percentage: 67}},
		{name: "clamped to total", current: 12, total: 10, expected: Progress{Current: 10, Total: 10, Percentage: 100}},
		{name: "negative current", current: -1, total: 10, expected: Progress{Current: 0, Total: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, newProgress(tt.current, tt.total))
		})
	}
}

func TestRunner_ExecuteCollectsResult(t *testing.T) {
	t.Parallel()

	r := NewRunner("DailyIncremental", "daily", func(_ context.Context, run *Run, opts Options) error {
		assert.Equal(t, 7, opts.CooldownDays)
		run.AddSubjects(3)
		run.AddCharacters(5)
		run.RecordError(42, errors.New("HTTP 500"))
		run.RecordError(43, nil)
		run.UpdateProgress(3, 4)
		return nil
	})

	result, err := r.Execute(context.Background(), Options{CooldownDays: 7})
	require.NoError(t, err)

	assert.Equal(t, "DailyIncremental", result.Strategy)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.SubjectsProcessed)
	assert.Equal(t, 5, result.CharactersProcessed)
	assert.Equal(t, []EntityError{{ID: 42, Error: "HTTP 500"}}, result.Errors)
	assert.NoError(t, result.Err)
	assert.False(t, result.Stopped)
	assert.Equal(t, result.Duration.Milliseconds(), result.DurationMs)
	assert.False(t, r.IsRunning())
	assert.Equal(t, Progress{Current: 3, Total: 4, Percentage: 75}, r.Progress())
}

func TestRunner_CapturesErrorsAndPanics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		work          WorkFunc
		errorContains string
	}{
		{
			name: "returned error",
			work: func(context.Context, *Run, Options) error {
				return errors.New("failed to count local subjects")
			},
			errorContains: "failed to count local subjects",
		},
		{
			name: "panic",
			work: func(context.Context, *Run, Options) error {
				panic("nil page")
			},
			errorContains: "panicked: nil page",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewRunner("YearlyUpdate", "", tt.work)
			result, err := r.Execute(context.Background(), Options{})
			require.NoError(t, err)
			require.Error(t, result.Err)
			assert.Contains(t, result.Err.Error(), tt.errorContains)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, int64(0), result.Errors[0].ID)
			assert.False(t, r.IsRunning())
		})
	}
}

func TestRunner_RejectsConcurrentExecute(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRunner("MonthlyRotation", "", func(context.Context, *Run, Options) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Execute(context.Background(), Options{})
	}()
	<-started

	assert.True(t, r.IsRunning())
	_, err := r.Execute(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	<-done
	assert.False(t, r.IsRunning())

	r.work = func(context.Context, *Run, Options) error { return nil }
	_, err = r.Execute(context.Background(), Options{})
	assert.NoError(t, err)
}

func TestRunner_StopIsCooperative(t *testing.T) {
	t.Parallel()

	processed := make(chan int, 1)
	r := NewRunner("BiweeklyUpdate", "", nil)
	r.work = func(ctx context.Context, run *Run, _ Options) error {
		n := 0
		for !run.ShouldStop(ctx) {
			n++
			run.AddSubjects(1)
			if n == 3 {
				r.Stop()
			}
		}
		processed <- n
		return nil
	}

	result, err := r.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, <-processed)
	assert.Equal(t, 3, result.SubjectsProcessed)
	assert.True(t, result.Stopped)

	// A new run clears the previous stop request.
	r.work = func(ctx context.Context, run *Run, _ Options) error {
		assert.False(t, run.ShouldStop(ctx))
		return nil
	}
	result, err = r.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, result.Stopped)
}

func TestRunner_StoppingClosesOncePerRun(t *testing.T) {
	t.Parallel()

	closed := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	r := NewRunner("FullBackfill", "", nil)
	r.work = func(_ context.Context, run *Run, _ Options) error {
		assert.False(t, closed(run.Stopping()))
		r.Stop()
		r.Stop()
		assert.True(t, closed(run.Stopping()))
		return nil
	}
	result, err := r.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Stopped)

	r.work = func(_ context.Context, run *Run, _ Options) error {
		assert.False(t, closed(run.Stopping()), "a new run gets an open channel")
		return nil
	}
	result, err = r.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, result.Stopped)
}

func TestRunner_ContextCancellationStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner("FullBackfill", "", func(ctx context.Context, run *Run, _ Options) error {
		cancel()
		assert.True(t, run.ShouldStop(ctx))
		return nil
	})

	result, err := r.Execute(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, result.Stopped)
}

func TestRunner_ProgressResetsBetweenRuns(t *testing.T) {
	t.Parallel()

	seen := make(chan Progress, 1)
	var r *Runner
	r = NewRunner("DailyIncremental", "", func(_ context.Context, run *Run, _ Options) error {
		seen <- r.Progress()
		run.UpdateProgress(10, 10)
		return nil
	})

	_, err := r.Execute(context.Background(), Options{})
	require.NoError(t, err)
	<-seen
	assert.Equal(t, 100, r.Progress().Percentage)

	_, err = r.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Progress{}, <-seen)
}
