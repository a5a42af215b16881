package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	stdsync "sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-mirror/internal/otel"
	"github.com/stacklok/catalog-mirror/internal/telemetry"
)

// Info describes a registered strategy for operator dashboards.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsRunning   bool     `json:"isRunning"`
	Progress    Progress `json:"progress"`
}

// Manager is the registry of named strategies. It guarantees that at most one
// execution per strategy name is in flight.
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/catalog-mirror/internal/sync Manager
type Manager interface {
	// Register adds a strategy. Registering a name twice replaces the earlier strategy.
	Register(strategy Strategy)

	// Execute runs the named strategy and blocks until it completes.
	Execute(ctx context.Context, name string, opts Options) (*Result, error)

	// Start runs the named strategy in the background. Contract violations
	// (unknown name, run in flight) are reported synchronously. done, when
	// non-nil, receives the result once the run completes.
	Start(ctx context.Context, name string, opts Options, done func(*Result, error)) error

	// Stop asks the named strategy to stop.
	Stop(name string) error

	// StopAll asks every registered strategy to stop.
	StopAll()

	// Info returns a snapshot of every registered strategy, sorted by name.
	Info() []Info

	// Names returns the registered strategy names, sorted.
	Names() []string

	// Wait blocks until every background run started with Start has returned.
	Wait()
}

// ManagerOption configures the default Manager.
type ManagerOption func(*defaultManager)

// WithMetrics records run metrics.
func WithMetrics(m *telemetry.SyncMetrics) ManagerOption {
	return func(dm *defaultManager) {
		dm.metrics = m
	}
}

// WithTracer traces strategy executions.
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(dm *defaultManager) {
		dm.tracer = tracer
	}
}

// defaultManager is the default implementation of Manager.
type defaultManager struct {
	mu         stdsync.Mutex
	strategies map[string]Strategy
	inflight   map[string]struct{}
	background stdsync.WaitGroup

	metrics *telemetry.SyncMetrics
	tracer  trace.Tracer
}

// NewManager creates an empty strategy registry.
func NewManager(opts ...ManagerOption) Manager {
	m := &defaultManager{
		strategies: make(map[string]Strategy),
		inflight:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *defaultManager) Register(strategy Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.strategies[strategy.Name()]; exists {
		slog.Warn("Replacing registered strategy", "strategy", strategy.Name())
	}
	m.strategies[strategy.Name()] = strategy
}

// acquire marks name as in flight and returns its strategy.
func (m *defaultManager) acquire(name string) (Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	strategy, ok := m.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrStrategyNotFound)
	}
	if _, running := m.inflight[name]; running {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	m.inflight[name] = struct{}{}
	return strategy, nil
}

func (m *defaultManager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, name)
}

func (m *defaultManager) Execute(ctx context.Context, name string, opts Options) (*Result, error) {
	strategy, err := m.acquire(name)
	if err != nil {
		return nil, err
	}
	defer m.release(name)

	return m.run(ctx, strategy, opts)
}

func (m *defaultManager) Start(ctx context.Context, name string, opts Options, done func(*Result, error)) error {
	strategy, err := m.acquire(name)
	if err != nil {
		return err
	}

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer m.release(name)

		result, err := m.run(ctx, strategy, opts)
		if err != nil {
			slog.Error("Background strategy run rejected", "strategy", name, "error", err)
		}
		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

func (m *defaultManager) run(ctx context.Context, strategy Strategy, opts Options) (*Result, error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.execute",
		trace.WithAttributes(otel.AttrStrategy.String(strategy.Name())))
	defer span.End()

	result, err := strategy.Execute(ctx, opts)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	m.metrics.RecordRun(ctx, strategy.Name(), result.Duration, result.Err == nil,
		result.SubjectsProcessed, result.CharactersProcessed, len(result.Errors))

	span.SetAttributes(
		otel.AttrSubjectsProcessed.Int(result.SubjectsProcessed),
		otel.AttrCharactersProcessed.Int(result.CharactersProcessed),
		otel.AttrErrorCount.Int(len(result.Errors)),
	)
	if result.Err != nil {
		otel.RecordError(span, result.Err)
	}
	return result, nil
}

func (m *defaultManager) Stop(name string) error {
	m.mu.Lock()
	strategy, ok := m.strategies[name]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%q: %w", name, ErrStrategyNotFound)
	}
	strategy.Stop()
	return nil
}

func (m *defaultManager) StopAll() {
	for _, strategy := range m.snapshot() {
		strategy.Stop()
	}
}

func (m *defaultManager) Info() []Info {
	strategies := m.snapshot()
	infos := make([]Info, 0, len(strategies))
	for _, s := range strategies {
		infos = append(infos, Info{
			Name:        s.Name(),
			Description: s.Description(),
			IsRunning:   s.IsRunning(),
			Progress:    s.Progress(),
		})
	}
	return infos
}

func (m *defaultManager) Names() []string {
	strategies := m.snapshot()
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	return names
}

func (m *defaultManager) Wait() {
	m.background.Wait()
}

// snapshot returns the registered strategies sorted by name.
func (m *defaultManager) snapshot() []Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Strategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// IsContractError reports whether err rejected a run before it started.
func IsContractError(err error) bool {
	return errors.Is(err, ErrStrategyNotFound) || errors.Is(err, ErrAlreadyRunning)
}
