// Package strategies contains the concrete sync strategies. Each strategy is
// a sync.Runner whose work function selects subjects and hands them to a
// shared paginated scan.
package strategies

import (
	"time"

	"github.com/stacklok/catalog-mirror/internal/breaker"
	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/checkpoint"
	"github.com/stacklok/catalog-mirror/internal/cooldown"
	"github.com/stacklok/catalog-mirror/internal/notify"
	"github.com/stacklok/catalog-mirror/internal/store"
	"github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/sync/rotation"
	"github.com/stacklok/catalog-mirror/internal/telemetry"
)

// Registered strategy names.
const (
	NameDailyIncremental = "DailyIncremental"
	NameYearlyUpdate     = "YearlyUpdate"
	NameBiweeklyUpdate   = "BiweeklyUpdate"
	NameMonthlyRotation  = "MonthlyRotation"
	NameFullBackfill     = "FullBackfill"
)

// Default tuning values.
const (
	DefaultBatchSize         = 50
	DefaultIncrementalBuffer = 50
	DefaultFailureBackoff    = 30 * time.Second
	DefaultDailyCooldown     = 3
	DefaultBiweeklyCooldown  = 14
	DefaultMonthlyCooldown   = 60
)

// Settings tune the strategies.
type Settings struct {
	// SubjectType restricts every listing to one subject category. Zero lists all.
	SubjectType catalog.SubjectType
	// BatchSize is the default page size.
	BatchSize int
	// IncrementalBuffer is how many already mirrored subjects the daily
	// incremental run re-reads before the new ones.
	IncrementalBuffer int
	// FailureThreshold is the consecutive page failures that abort a scan.
	FailureThreshold int
	// FailureBackoff is the pause before retrying a failed page.
	FailureBackoff time.Duration
	// NotifyChannel receives circuit breaker alerts.
	NotifyChannel string

	DailyCooldownDays    int
	BiweeklyCooldownDays int
	// MonthlyCooldownDays is reported for the rotation but the rotation and
	// backfill use the age based Policy unless a run overrides the cooldown.
	MonthlyCooldownDays int

	// Now is overridable for tests.
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.IncrementalBuffer <= 0 {
		s.IncrementalBuffer = DefaultIncrementalBuffer
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = breaker.DefaultThreshold
	}
	if s.FailureBackoff <= 0 {
		s.FailureBackoff = DefaultFailureBackoff
	}
	if s.DailyCooldownDays <= 0 {
		s.DailyCooldownDays = DefaultDailyCooldown
	}
	if s.BiweeklyCooldownDays <= 0 {
		s.BiweeklyCooldownDays = DefaultBiweeklyCooldown
	}
	if s.MonthlyCooldownDays <= 0 {
		s.MonthlyCooldownDays = DefaultMonthlyCooldown
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Dependencies are the collaborators shared by all strategies.
type Dependencies struct {
	// Catalog must already be rate limited.
	Catalog    catalog.Client
	Store      store.Store
	Checkpoint *checkpoint.Store
	Cursor     *rotation.Cursor
	Policy     *cooldown.Policy
	Notifier   notify.Notifier
	Metrics    *telemetry.SyncMetrics
}

// RegisterAll registers every strategy with m.
func RegisterAll(m sync.Manager, deps Dependencies, settings Settings) {
	m.Register(NewDailyIncremental(deps, settings))
	m.Register(NewYearlyUpdate(deps, settings))
	m.Register(NewBiweeklyUpdate(deps, settings))
	m.Register(NewMonthlyRotation(deps, settings))
	m.Register(NewFullBackfill(deps, settings))
}

// batchSize returns the run's page size.
func batchSize(opts sync.Options, settings Settings) int {
	if opts.BatchSize > 0 {
		return opts.BatchSize
	}
	return settings.BatchSize
}

// fixedCooldown returns a cooldown func using the run override or def.
func fixedCooldown(opts sync.Options, def int) func(*catalog.Subject) int {
	days := def
	if opts.CooldownDays > 0 {
		days = opts.CooldownDays
	}
	return func(*catalog.Subject) int { return days }
}

// ageCooldown returns a cooldown func using the run override or the subject's age.
func ageCooldown(opts sync.Options, policy *cooldown.Policy) func(*catalog.Subject) int {
	if opts.CooldownDays > 0 {
		return fixedCooldown(opts, opts.CooldownDays)
	}
	return func(s *catalog.Subject) int { return policy.Days(s.Date) }
}
