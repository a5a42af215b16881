// Package rotation persists the monthly rotation cursor. The cursor cycles
// through 13 buckets: 0 selects subjects without a date and 1..12 select the
// calendar months.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stacklok/catalog-mirror/internal/kvstore"
)

const (
	// Buckets is the number of cursor positions.
	Buckets = 13

	// Undated is the cursor position for subjects without a date.
	Undated = 0
)

// ErrInvalidMonth is returned by Reset for positions outside 0..12.
var ErrInvalidMonth = errors.New("month must be between 0 and 12")

// Status describes the cursor for operators.
type Status struct {
	CurrentMonth    int    `json:"currentMonth"`
	DisplayName     string `json:"displayName"`
	NextMonth       int    `json:"nextMonth"`
	NextDisplayName string `json:"nextDisplayName"`
	Progress        string `json:"progress"`
}

// DisplayName names a cursor position.
func DisplayName(month int) string {
	if month == Undated {
		return "undated"
	}
	if month < 1 || month > 12 {
		return "invalid"
	}
	return time.Month(month).String()
}

// Next returns the position that follows month.
func Next(month int) int {
	return (month + 1) % Buckets
}

// Cursor reads and writes the rotation position under a fixed key. The
// cursor never expires.
type Cursor struct {
	kv  kvstore.Store
	key string
}

// NewCursor creates a Cursor stored under key.
func NewCursor(kv kvstore.Store, key string) *Cursor {
	return &Cursor{kv: kv, key: key}
}

// Current returns the stored position, or 0 when none is stored or the stored
// value is out of range.
func (c *Cursor) Current(ctx context.Context) (int, error) {
	raw, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		return 0, fmt.Errorf("failed to read rotation cursor: %w", err)
	}
	if !ok {
		return Undated, nil
	}

	month, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || month < 0 || month >= Buckets {
		slog.Warn("Ignoring malformed rotation cursor", "key", c.key, "value", raw)
		return Undated, nil
	}
	return month, nil
}

// Advance moves the cursor to the next position and returns it.
func (c *Cursor) Advance(ctx context.Context) (int, error) {
	current, err := c.Current(ctx)
	if err != nil {
		return 0, err
	}
	next := Next(current)
	if err := c.set(ctx, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Reset moves the cursor to month.
func (c *Cursor) Reset(ctx context.Context, month int) error {
	if month < 0 || month >= Buckets {
		return fmt.Errorf("%w, got %d", ErrInvalidMonth, month)
	}
	return c.set(ctx, month)
}

// Status reports the current and next positions.
func (c *Cursor) Status(ctx context.Context) (*Status, error) {
	current, err := c.Current(ctx)
	if err != nil {
		return nil, err
	}
	next := Next(current)
	return &Status{
		CurrentMonth:    current,
		DisplayName:     DisplayName(current),
		NextMonth:       next,
		NextDisplayName: DisplayName(next),
		Progress:        fmt.Sprintf("%d/%d", current, Buckets),
	}, nil
}

func (c *Cursor) set(ctx context.Context, month int) error {
	if err := c.kv.Set(ctx, c.key, strconv.Itoa(month), 0); err != nil {
		return fmt.Errorf("failed to write rotation cursor: %w", err)
	}
	return nil
}
