package strategies

import (
	"context"
	"log/slog"

	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/cooldown"
	"github.com/stacklok/catalog-mirror/internal/sync"
)

// NewYearlyUpdate creates the strategy that refreshes subjects dated this
// year or next year, which change most often.
func NewYearlyUpdate(deps Dependencies, settings Settings) *sync.Runner {
	settings = settings.withDefaults()
	return newYearScan(NameYearlyUpdate,
		"Refresh subjects dated this year and next year",
		deps, settings, settings.DailyCooldownDays,
		func(year int) []int { return []int{year, year + 1} })
}

// NewBiweeklyUpdate creates the strategy that refreshes subjects from the two
// previous years.
func NewBiweeklyUpdate(deps Dependencies, settings Settings) *sync.Runner {
	settings = settings.withDefaults()
	return newYearScan(NameBiweeklyUpdate,
		"Refresh subjects dated in the two previous years",
		deps, settings, settings.BiweeklyCooldownDays,
		func(year int) []int { return []int{year - 2, year - 1} })
}

func newYearScan(
	name, description string,
	deps Dependencies,
	settings Settings,
	cooldownDays int,
	targetYears func(currentYear int) []int,
) *sync.Runner {
	s := newScanner(name, deps, settings)

	return sync.NewRunner(name, description, func(ctx context.Context, run *sync.Run, opts sync.Options) error {
		years := targetYears(settings.Now().Year())
		slog.Info("Scanning target years", "strategy", name, "run_id", run.ID(), "years", years)

		var doneBefore, totalBefore int
		for _, year := range years {
			if run.ShouldStop(ctx) {
				return nil
			}

			end, err := s.scan(ctx, run, window{
				filter:    catalog.Filter{Type: settings.SubjectType, Year: year},
				batchSize: batchSize(opts, settings),
				accept:    inYear(year),
				cooldown:  fixedCooldown(opts, cooldownDays),
				progress: func(offset, total int) {
					run.UpdateProgress(doneBefore+offset, totalBefore+total)
				},
			}, opts)
			if err != nil {
				return err
			}
			doneBefore += end.offset
			totalBefore += end.total
		}
		return nil
	})
}

// inYear accepts subjects whose date falls in year.
func inYear(year int) func(*catalog.Subject) bool {
	return func(s *catalog.Subject) bool {
		date, ok := cooldown.ParseDate(s.Date)
		return ok && date.Year() == year
	}
}
