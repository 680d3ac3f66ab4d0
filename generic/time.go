package generic

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// =============================================================================
// DATE - Civil calendar day in the business time zone
// =============================================================================

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar day with no time-of-day and no zone. It is always
// produced from an instant through a Clock's location, so every component
// agrees on where a day starts.
type Date struct {
	t time.Time // midnight UTC
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of instant t as seen in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	local := t.In(loc)
	return NewDate(local.Year(), local.Month(), local.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// DaysUntil returns the number of calendar days from d to other.
// Negative when other is earlier.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) String() string        { return d.t.Format(DateLayout) }

// StartIn returns the instant the day begins in loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }
func StartOfYear(year int) Date                    { return NewDate(year, time.January, 1) }

// StartOfWeek returns the Monday on or before d.
func StartOfWeek(d Date) Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// =============================================================================
// CLOCK - Source of "now" in the business time zone
// =============================================================================

// DefaultTimeZone is the business zone used when configuration names none.
const DefaultTimeZone = "America/Bogota"

// Clock is passed into every component that needs the current time. There is
// no process-wide zone override; the Clock's location defines day boundaries.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Today returns the current business day of c.
func Today(c Clock) Date { return DateOf(c.Now(), c.Location()) }

// SystemClock reads the wall clock.
type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

// LoadClock builds a SystemClock for the named IANA zone.
func LoadClock(zone string) (*SystemClock, error) {
	if zone == "" {
		zone = DefaultTimeZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return NewSystemClock(loc), nil
}

func (c *SystemClock) Now() time.Time            { return time.Now().In(c.loc) }
func (c *SystemClock) Location() *time.Location { return c.loc }

// FixedClock always returns the same instant. Set moves it.
type FixedClock struct {
	now time.Time
	loc *time.Location
}

func NewFixedClock(now time.Time, loc *time.Location) *FixedClock {
	if loc == nil {
		loc = time.UTC
	}
	return &FixedClock{now: now.In(loc), loc: loc}
}

// FixedClockAt returns a clock at hour:00 local time on day d.
func FixedClockAt(d Date, hour int, loc *time.Location) *FixedClock {
	if loc == nil {
		loc = time.UTC
	}
	return NewFixedClock(time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc), loc)
}

func (c *FixedClock) Now() time.Time            { return c.now }
func (c *FixedClock) Location() *time.Location { return c.loc }
func (c *FixedClock) Set(now time.Time)         { c.now = now.In(c.loc) }
