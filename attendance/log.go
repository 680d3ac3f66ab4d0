/*
Package attendance implements the attendance log.

PURPOSE:
  Records gym visits with at most one attendance per member per business day.

CHECK-IN RULES:
  1. The business day is the clock's calendar day of the check-in instant.
  2. A second check-in on the same day is soft: the result carries the
     existing visit and the error is *generic.AlreadyCheckedInError.
  3. A Daily pass admits up to and including its expiration day. After it
     the check-in is refused with *generic.DailyPassExpiredError.
  4. Any other plan whose expiration is before the day still checks in,
     with a PlanExpiredWarning so the desk can prompt for renewal.

The day check runs inside the insert transaction and the store enforces the
same (member, day) uniqueness, so two concurrent check-ins cannot both land.

SEE ALSO:
  - membership/manager.go: Daily renewals record a visit through RecordVisit
  - store/sqlstore: uq_attendance_member_day
*/
package attendance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/telemetry"
)

// Log records and reads attendance.
type Log struct {
	store  generic.TxStore
	clock  generic.Clock
	log    *slog.Logger
	tracer trace.Tracer

	checkIns metric.Int64Counter
}

func NewLog(store generic.TxStore, clock generic.Clock, logger *slog.Logger) *Log {
	checkIns, _ := otel.Meter("gymdesk/attendance").Int64Counter("gymdesk.attendance.checkins",
		metric.WithDescription("Check-in attempts by outcome"))
	return &Log{
		store:    store,
		clock:    clock,
		log:      logger,
		tracer:   otel.Tracer("gymdesk/attendance"),
		checkIns: checkIns,
	}
}

// CheckInResult describes a check-in. On a repeat visit Attendance is the
// visit already on record.
type CheckInResult struct {
	Attendance       generic.Attendance
	AlreadyCheckedIn bool
	Warning          *generic.PlanExpiredWarning
}

// CheckIn records a visit at the given instant, or now when at is nil.
func (l *Log) CheckIn(ctx context.Context, memberID generic.MemberID, at *time.Time) (CheckInResult, error) {
	when := l.clock.Now()
	if at != nil {
		when = at.In(l.clock.Location())
	}
	day := generic.DateOf(when, l.clock.Location())

	ctx, span := l.tracer.Start(ctx, "attendance.check_in",
		trace.WithAttributes(attribute.String("member.id", string(memberID)), attribute.String("day", day.String())))
	var err error
	defer func() {
		// A repeat visit is not a failure of the span.
		if errors.Is(err, generic.ErrAlreadyCheckedIn) {
			telemetry.End(span, nil)
			return
		}
		telemetry.End(span, err)
	}()

	var result CheckInResult
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return err
		}

		existing, found, err := tx.AttendanceOnDay(ctx, memberID, day)
		if err != nil {
			return err
		}
		if found {
			result = CheckInResult{Attendance: existing, AlreadyCheckedIn: true}
			return &generic.AlreadyCheckedInError{MemberID: memberID, Day: day, ExistingAt: existing.CheckedInAt}
		}

		warning, err := admit(member, day)
		if err != nil {
			return err
		}

		a := generic.Attendance{
			ID:          generic.AttendanceID(generic.NewID()),
			MemberID:    memberID,
			CheckedInAt: when,
			Day:         day,
		}
		if err := tx.InsertAttendance(ctx, a); err != nil {
			return err
		}
		result = CheckInResult{Attendance: a, Warning: warning}
		return nil
	})

	switch {
	case errors.Is(err, generic.ErrAlreadyCheckedIn):
		// The unique index may reject a concurrent duplicate before the
		// transaction saw it; report it the same way.
		result.AlreadyCheckedIn = true
		if result.Attendance.ID == "" {
			result.Attendance.MemberID = memberID
			result.Attendance.Day = day
		}
		l.checkIns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "already_checked_in")))
		l.log.Info("member already checked in", "member_id", memberID, "day", day.String())
		return result, err
	case err != nil:
		if errors.Is(err, generic.ErrDailyPassExpired) {
			l.checkIns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "refused")))
			l.log.Info("daily pass expired, check-in refused", "member_id", memberID, "day", day.String())
		}
		return CheckInResult{}, err
	}

	outcome := "recorded"
	if result.Warning != nil {
		outcome = "recorded_expired"
		span.SetAttributes(attribute.Bool("plan.expired", true))
		l.log.Info("member checked in with expired plan", "member_id", memberID, "day", day.String(),
			"expiration", result.Warning.Expiration.String(), "days_overdue", result.Warning.DaysOverdue)
	} else {
		l.log.Info("member checked in", "member_id", memberID, "day", day.String())
	}
	l.checkIns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return result, nil
}

// admit applies the plan rules for a visit on day.
func admit(m generic.Member, day generic.Date) (*generic.PlanExpiredWarning, error) {
	if m.Plan == plans.Daily {
		if m.PlanExpiration != nil && m.PlanExpiration.Before(day) {
			return nil, &generic.DailyPassExpiredError{MemberID: m.ID, Expiration: m.PlanExpiration}
		}
		return nil, nil
	}
	if m.PlanExpiration != nil && m.PlanExpiration.Before(day) {
		return &generic.PlanExpiredWarning{
			MemberID:    m.ID,
			Plan:        m.Plan,
			Expiration:  *m.PlanExpiration,
			DaysOverdue: m.PlanExpiration.DaysUntil(day),
		}, nil
	}
	return nil, nil
}

// RecordVisit appends attendance for day inside the caller's transaction
// unless one already exists. It reports whether a row was added.
func RecordVisit(ctx context.Context, tx generic.Store, memberID generic.MemberID, at time.Time, day generic.Date) (bool, error) {
	_, found, err := tx.AttendanceOnDay(ctx, memberID, day)
	if err != nil || found {
		return false, err
	}
	err = tx.InsertAttendance(ctx, generic.Attendance{
		ID:          generic.AttendanceID(generic.NewID()),
		MemberID:    memberID,
		CheckedInAt: at,
		Day:         day,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// READS
// =============================================================================

// History returns a member's visits, newest first.
func (l *Log) History(ctx context.Context, memberID generic.MemberID) ([]generic.Attendance, error) {
	if _, err := l.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return l.store.AttendanceByMember(ctx, memberID)
}

// DayCount is the number of visits on one calendar day.
type DayCount struct {
	Day    generic.Date `json:"day"`
	Visits int          `json:"visits"`
}

// MonthCalendar returns one entry per day of the month, zero-filled. A
// non-nil memberID restricts the counts to that member.
func (l *Log) MonthCalendar(ctx context.Context, year int, month time.Month, memberID *generic.MemberID) ([]DayCount, error) {
	if month < time.January || month > time.December {
		return nil, &generic.ValidationError{Field: "month", Message: "must be 1-12"}
	}
	period := generic.MonthPeriod(generic.StartOfMonth(year, month))

	visits, err := l.store.AttendanceInPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	counts := make(map[generic.Date]int, period.Len())
	for _, v := range visits {
		if memberID != nil && v.MemberID != *memberID {
			continue
		}
		counts[v.Day]++
	}

	days := period.Days()
	out := make([]DayCount, len(days))
	for i, d := range days {
		out[i] = DayCount{Day: d, Visits: counts[d]}
	}
	return out, nil
}

// Counts summarizes visits for today and the current month.
type Counts struct {
	Today int `json:"today"`
	Month int `json:"month"`
}

func (l *Log) Counts(ctx context.Context) (Counts, error) {
	today := generic.Today(l.clock)

	month, err := l.store.AttendanceInPeriod(ctx, generic.MonthPeriod(today))
	if err != nil {
		return Counts{}, err
	}
	c := Counts{Month: len(month)}
	for _, v := range month {
		if v.Day.Equal(today) {
			c.Today++
		}
	}
	return c, nil
}

// InPeriod returns every visit whose day falls inside p.
func (l *Log) InPeriod(ctx context.Context, p generic.Period) ([]generic.Attendance, error) {
	return l.store.AttendanceInPeriod(ctx, p)
}
