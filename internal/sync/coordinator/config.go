package coordinator

import (
	"log/slog"
	"time"

	"github.com/stacklok/catalog-mirror/internal/config"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
)

// defaultInterval applies when a schedule has no valid interval
const defaultInterval = 24 * time.Hour

// SchedulesFromConfig converts the configured schedules
func SchedulesFromConfig(cfgs []config.ScheduleConfig) []Schedule {
	schedules := make([]Schedule, 0, len(cfgs))
	for _, cfg := range cfgs {
		schedules = append(schedules, Schedule{
			Strategy: cfg.Strategy,
			Interval: getSyncInterval(cfg.Interval),
			Options: pkgsync.Options{
				CooldownDays:   cfg.CooldownDays,
				BatchSize:      cfg.BatchSize,
				SkipCharacters: cfg.SkipCharacters,
			},
		})
	}
	return schedules
}

// getSyncInterval parses a schedule interval
func getSyncInterval(interval string) time.Duration {
	if interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d > 0 {
			return d
		}
		slog.Warn("Invalid schedule interval, using default",
			"interval", interval,
			"default", defaultInterval)
	}
	return defaultInterval
}
