// Package timeutil provides calendar-day helpers in a configurable timezone
// and a clock abstraction for deterministic tests.
package timeutil

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// DayLayout is the format of a calendar-day key.
const DayLayout = "2006-01-02"

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// DAY BOUNDARIES
// ══════════════════════════════════════════════════════════════════════════════

// LoadLocation resolves a timezone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999999999 of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// DayBounds returns StartOfDay and EndOfDay together.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	return StartOfDay(t, loc), EndOfDay(t, loc)
}

// DayKey returns the calendar day of t in loc, formatted with DayLayout.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// ParseDay parses a DayLayout key into the start of that day in loc.
func ParseDay(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, want YYYY-MM-DD: %w", key, err)
	}
	return t, nil
}

// IsSameDay checks if a and b fall on the same calendar day in loc.
func IsSameDay(a, b time.Time, loc *time.Location) bool {
	return DayKey(a, loc) == DayKey(b, loc)
}

// Yesterday returns the start of the day before t's day in loc.
func Yesterday(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, -1)
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// FormatDuration formats a duration as "2h 15m" or "45m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatHours formats a fractional hour count as days and hours.
func FormatHours(h float64) string {
	if h < 0 {
		h = 0
	}
	total := int(h)
	days := total / 24
	hours := total % 24

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	return fmt.Sprintf("%dh", hours)
}
