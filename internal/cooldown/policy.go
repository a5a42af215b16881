// Package cooldown decides how long a mirrored record stays fresh before it
// is fetched from the catalog again.
package cooldown

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
)

const (
	// maxAgeYears is the age beyond which an entity always gets the longest cooldown.
	maxAgeYears = 10.0

	day  = 24 * time.Hour
	year = 365 * day
)

// dateLayouts are the accepted representations of an entity date.
var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01",
	"2006",
}

// Policy maps the age of an entity to a cooldown in days, bounded by
// [MinDays, MaxDays].
type Policy struct {
	MinDays int
	MaxDays int

	// Now is overridable for tests.
	Now func() time.Time
}

// NewPolicy creates a Policy with the given bounds. The bounds are swapped if
// given in the wrong order.
func NewPolicy(minDays, maxDays int) *Policy {
	if minDays > maxDays {
		minDays, maxDays = maxDays, minDays
	}
	return &Policy{MinDays: minDays, MaxDays: maxDays, Now: time.Now}
}

// Days returns the cooldown for an entity with the given date.
//
// Undated entities, unparsable dates and entities older than ten years get
// MaxDays. Younger entities are interpolated linearly on their age, so the
// newest titles are refreshed every MinDays and the cooldown grows towards
// MaxDays as the title approaches ten years.
func (p *Policy) Days(date string) int {
	entryDate, ok := ParseDate(date)
	if !ok {
		return p.MaxDays
	}

	yearsDiff := p.now().Sub(entryDate).Seconds() / year.Seconds()
	if yearsDiff > maxAgeYears {
		return p.MaxDays
	}

	// The ratio grows with age so Days stays monotonic and meets MaxDays at the
	// ten year cap. Inverting it to (10-age)/10 would make new titles the
	// least frequently refreshed and break continuity at the cap.
	ratio := math.Max(0, math.Min(1, yearsDiff/maxAgeYears))
	return int(math.Round(float64(p.MinDays) + float64(p.MaxDays-p.MinDays)*ratio))
}

func (p *Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// ParseDate parses a catalog date. Empty or malformed dates report false.
func ParseDate(date string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ErrRecordNotFound is returned by a Lookup when the record has never been stored.
var ErrRecordNotFound = errors.New("record not found")

// Lookup returns the last time a record was written locally.
type Lookup func(ctx context.Context, id int64) (time.Time, error)

// NeedsRefresh reports whether the record identified by id must be fetched
// again. Missing records and records older than cooldownDays need a refresh.
// Lookup failures fail open so a transient store error never skips an update.
func NeedsRefresh(ctx context.Context, lookup Lookup, id int64, cooldownDays int) bool {
	return needsRefreshAt(ctx, lookup, id, cooldownDays, time.Now())
}

func needsRefreshAt(ctx context.Context, lookup Lookup, id int64, cooldownDays int, now time.Time) bool {
	updatedAt, err := lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			slog.Warn("Cooldown lookup failed, refreshing record", "id", id, "error", err)
		}
		return true
	}
	return now.Sub(updatedAt) >= time.Duration(cooldownDays)*day
}
