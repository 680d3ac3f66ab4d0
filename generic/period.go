package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Half-open day range used by ledgers and reports
// =============================================================================

// Period is the half-open range [Start, End) of calendar days.
//
// Examples:
//   - A single day:   [2024-01-15, 2024-01-16)
//   - A plan period:  [2024-01-01, 2024-01-31)
//   - January 2024:   [2024-01-01, 2024-02-01)
type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates that end is strictly after start.
func NewPeriod(start, end Date) (Period, error) {
	if !end.After(start) {
		return Period{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidPeriod, start, end)
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if d is within [Start, End).
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.Before(p.End)
}

// Len returns the number of days in the period.
func (p Period) Len() int { return p.Start.DaysUntil(p.End) }

// Days returns every day of the period in order.
func (p Period) Days() []Date {
	days := make([]Date, 0, p.Len())
	for d := p.Start; d.Before(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Bounds converts the period to the instants [from, to) in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	return p.Start.StartIn(loc), p.End.StartIn(loc)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + ")"
}

// =============================================================================
// PERIOD SIZES - Day, week (Monday start) and calendar month
// =============================================================================

type PeriodSize string

const (
	PeriodDay   PeriodSize = "day"
	PeriodWeek  PeriodSize = "week"
	PeriodMonth PeriodSize = "month"
)

func DayPeriod(d Date) Period { return Period{Start: d, End: d.AddDays(1)} }

func WeekPeriod(d Date) Period {
	start := StartOfWeek(d)
	return Period{Start: start, End: start.AddDays(7)}
}

func MonthPeriod(d Date) Period {
	start := StartOfMonth(d.Year(), d.Month())
	return Period{Start: start, End: start.AddMonths(1)}
}

func YearPeriod(d Date) Period {
	start := StartOfYear(d.Year())
	return Period{Start: start, End: StartOfYear(d.Year() + 1)}
}

// PeriodContaining returns the period of the given size that contains d.
func PeriodContaining(size PeriodSize, d Date) (Period, error) {
	switch size {
	case PeriodDay:
		return DayPeriod(d), nil
	case PeriodWeek:
		return WeekPeriod(d), nil
	case PeriodMonth, "":
		return MonthPeriod(d), nil
	default:
		return Period{}, fmt.Errorf("%w: unknown period size %q", ErrInvalidPeriod, size)
	}
}

// Shift moves a period of the given size by n whole periods.
func (p Period) Shift(size PeriodSize, n int) Period {
	switch size {
	case PeriodDay:
		return Period{Start: p.Start.AddDays(n), End: p.End.AddDays(n)}
	case PeriodWeek:
		return Period{Start: p.Start.AddDays(7 * n), End: p.End.AddDays(7 * n)}
	default:
		start := p.Start.AddMonths(n)
		return Period{Start: start, End: start.AddMonths(1)}
	}
}

// =============================================================================
// NAMED PERIODS - Report selectors used by the API and CLI
// =============================================================================

// NamedPeriod resolves a report selector relative to today:
//
//	day, week, month, previous_month, year
//	quarter: from 90 days before the first of the month through today
func NamedPeriod(name string, today Date) (Period, error) {
	switch name {
	case "day", "today":
		return DayPeriod(today), nil
	case "week":
		return WeekPeriod(today), nil
	case "month", "":
		return MonthPeriod(today), nil
	case "previous_month":
		return MonthPeriod(today).Shift(PeriodMonth, -1), nil
	case "quarter":
		start := StartOfMonth(today.Year(), today.Month()).AddDays(-90)
		return Period{Start: start, End: today.AddDays(1)}, nil
	case "year":
		return YearPeriod(today), nil
	default:
		return Period{}, fmt.Errorf("%w: unknown period %q", ErrInvalidPeriod, name)
	}
}
