/*
Package membership implements the membership record manager.

PURPOSE:
  Owns a member's identity, current plan, expiration date and price snapshot.
  Every mutation that takes money posts its payment in the same transaction,
  so a member and their payment are always written together or not at all.

OPERATIONS:
  Register     New member + first payment for [start, expiration)
  Renew        New period on the current plan starting at start (default today)
  ChangePlan   Same as Renew after switching plan
  Remove       Transactional cascade: payments and attendance deleted,
               sales kept with no member, audit entry written
  Update       Name/phone edits (phone uniqueness re-checked)

BILLING STATUS:
  Derived from the expiration and today, never stored. See StatusOf.

PRICES:
  PlanPrice is the catalog price at the last registration or renewal. Later
  catalog changes do not touch existing members until they renew.

PAID_AT:
  Always the clock's current instant. A backdated or future start moves the
  plan period only, so revenue lands in the period the money came in.

SEE ALSO:
  - plans/catalog.go: Prices and expiration arithmetic
  - payments/ledger.go: Post and payment validation
  - attendance/log.go: RecordVisit for Daily renewals
*/
package membership

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/gymdesk/attendance"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/payments"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/telemetry"
)

// DefaultExpiringSoonDays is the EXPIRING_SOON window.
const DefaultExpiringSoonDays = 3

// Manager is the membership record manager.
type Manager struct {
	store   generic.TxStore
	catalog *plans.Catalog
	clock   generic.Clock
	log     *slog.Logger
	tracer  trace.Tracer

	expiringSoonDays int
	payments         metric.Int64Counter
}

func NewManager(store generic.TxStore, catalog *plans.Catalog, clock generic.Clock, logger *slog.Logger) *Manager {
	posted, _ := otel.Meter("gymdesk/membership").Int64Counter("gymdesk.payments.posted",
		metric.WithDescription("Payments posted by membership operations"))
	return &Manager{
		store:            store,
		catalog:          catalog,
		clock:            clock,
		log:              logger,
		tracer:           otel.Tracer("gymdesk/membership"),
		expiringSoonDays: DefaultExpiringSoonDays,
		payments:         posted,
	}
}

// SetExpiringSoonDays changes the EXPIRING_SOON window. Values below zero are ignored.
func (m *Manager) SetExpiringSoonDays(days int) {
	if days >= 0 {
		m.expiringSoonDays = days
	}
}

// =============================================================================
// REGISTER
// =============================================================================

// RegisterRequest carries the desk form for a new member.
type RegisterRequest struct {
	Name      string
	Phone     string
	Plan      generic.PlanCode
	Method    generic.PaymentMethod
	StartDate *generic.Date
}

// Register creates a member and posts the first payment atomically.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (View, error) {
	ctx, span := m.tracer.Start(ctx, "membership.register",
		trace.WithAttributes(attribute.String("plan", string(req.Plan))))
	var err error
	defer func() { telemetry.End(span, err) }()

	name, phone := strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone)
	if err = validateIdentity(name, phone); err != nil {
		return View{}, err
	}
	if err = validateMethod(req.Method); err != nil {
		return View{}, err
	}
	plan, err := m.catalog.Lookup(req.Plan)
	if err != nil {
		return View{}, err
	}

	paidAt := m.clock.Now()
	start := m.startOf(req.StartDate)
	period, err := m.catalog.PlanPeriod(start, plan.Code)
	if err != nil {
		return View{}, err
	}

	member := generic.Member{
		ID:             generic.MemberID(generic.NewID()),
		Name:           name,
		Phone:          phone,
		Plan:           plan.Code,
		JoinDate:       start,
		PlanExpiration: &period.End,
		PlanPrice:      plan.Price,
		CreatedAt:      m.clock.Now(),
	}

	var payment generic.Payment
	err = m.store.WithTx(ctx, func(tx generic.Store) error {
		if owner, taken, err := tx.FindMemberByPhone(ctx, phone); err != nil {
			return err
		} else if taken {
			return &generic.DuplicatePhoneError{Phone: phone, ExistingMemberID: owner.ID}
		}
		if err := tx.InsertMember(ctx, member); err != nil {
			return err
		}
		posted, err := payments.Post(ctx, tx, generic.Payment{
			MemberID: member.ID,
			Amount:   plan.Price,
			Method:   req.Method,
			Plan:     plan.Code,
			Period:   period,
			PaidAt:   paidAt,
		})
		payment = posted
		return err
	})
	if err != nil {
		return View{}, err
	}

	span.SetAttributes(attribute.String("member.id", string(member.ID)))
	m.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("plan", string(plan.Code)), attribute.String("operation", "register")))
	m.log.Info("member registered", "member_id", member.ID, "plan", plan.Code,
		"expiration", period.End.String(), "payment_id", payment.ID, "amount", payment.Amount.String())
	return m.view(member), nil
}

// =============================================================================
// RENEW / CHANGE PLAN
// =============================================================================

// Renew starts a new period on the member's current plan. The period starts
// at start (default today) and does not stack onto remaining time.
func (m *Manager) Renew(ctx context.Context, id generic.MemberID, method generic.PaymentMethod, start *generic.Date) (View, error) {
	return m.renew(ctx, "membership.renew", id, "", method, start)
}

// ChangePlan switches the member to plan and renews on it.
func (m *Manager) ChangePlan(ctx context.Context, id generic.MemberID, plan generic.PlanCode, method generic.PaymentMethod, start *generic.Date) (View, error) {
	if plan == "" {
		return View{}, &generic.ValidationError{Field: "plan", Message: "required"}
	}
	return m.renew(ctx, "membership.change_plan", id, plan, method, start)
}

func (m *Manager) renew(ctx context.Context, op string, id generic.MemberID, newPlan generic.PlanCode, method generic.PaymentMethod, startDate *generic.Date) (View, error) {
	ctx, span := m.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("member.id", string(id))))
	var err error
	defer func() { telemetry.End(span, err) }()

	if err = validateMethod(method); err != nil {
		return View{}, err
	}
	if newPlan != "" {
		if _, err = m.catalog.Lookup(newPlan); err != nil {
			return View{}, err
		}
	}

	paidAt := m.clock.Now()
	start := m.startOf(startDate)
	var (
		member  generic.Member
		payment generic.Payment
		visited bool
	)
	err = m.store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		if member, err = tx.GetMember(ctx, id); err != nil {
			return err
		}
		if newPlan != "" {
			member.Plan = newPlan
		}
		plan, err := m.catalog.Lookup(member.Plan)
		if err != nil {
			return err
		}
		period, err := m.catalog.PlanPeriod(start, plan.Code)
		if err != nil {
			return err
		}

		member.PlanExpiration = &period.End
		member.PlanPrice = plan.Price
		if err := tx.UpdateMember(ctx, member); err != nil {
			return err
		}
		payment, err = payments.Post(ctx, tx, generic.Payment{
			MemberID: id,
			Amount:   plan.Price,
			Method:   method,
			Plan:     plan.Code,
			Period:   period,
			PaidAt:   paidAt,
		})
		if err != nil {
			return err
		}

		// A daily pass is bought at the door: renewing one is a visit.
		if plan.Code == plans.Daily {
			visited, err = attendance.RecordVisit(ctx, tx, id, m.instantOn(start, paidAt), start)
			return err
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}

	m.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("plan", string(member.Plan)), attribute.String("operation", op)))
	m.log.Info("membership renewed", "member_id", id, "plan", member.Plan,
		"expiration", member.PlanExpiration.String(), "payment_id", payment.ID,
		"amount", payment.Amount.String(), "visit_recorded", visited)
	return m.view(member), nil
}

// startOf resolves an optional start date, default today. It only moves the
// plan period: paid_at is always the moment the money was taken.
func (m *Manager) startOf(start *generic.Date) generic.Date {
	if start == nil {
		return generic.Today(m.clock)
	}
	return *start
}

// instantOn returns now when it falls on day, else the start of day.
func (m *Manager) instantOn(day generic.Date, now time.Time) time.Time {
	if generic.DateOf(now, m.clock.Location()).Equal(day) {
		return now
	}
	return day.StartIn(m.clock.Location())
}

// =============================================================================
// REMOVE
// =============================================================================

// Removal reports what a member removal touched.
type Removal struct {
	MemberID          generic.MemberID `json:"member_id"`
	PaymentsDeleted   int              `json:"payments_deleted"`
	AttendanceDeleted int              `json:"attendance_deleted"`
	SalesDetached     int              `json:"sales_detached"`
}

// Remove deletes a member and cascades in one transaction: payments and
// attendance are deleted, sales keep their revenue with no member attached.
// Authorization of actor is the caller's concern.
func (m *Manager) Remove(ctx context.Context, id generic.MemberID, actor, reason string) (Removal, error) {
	ctx, span := m.tracer.Start(ctx, "membership.remove",
		trace.WithAttributes(attribute.String("member.id", string(id)), attribute.String("actor", actor)))
	var err error
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(actor) == "" {
		err = &generic.ValidationError{Field: "actor", Message: "required"}
		return Removal{}, err
	}

	removal := Removal{MemberID: id}
	err = m.store.WithTx(ctx, func(tx generic.Store) error {
		member, err := tx.GetMember(ctx, id)
		if err != nil {
			return err
		}
		if removal.PaymentsDeleted, err = tx.DeletePaymentsByMember(ctx, id); err != nil {
			return err
		}
		if removal.AttendanceDeleted, err = tx.DeleteAttendanceByMember(ctx, id); err != nil {
			return err
		}
		if removal.SalesDetached, err = tx.DetachSalesFromMember(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteMember(ctx, id); err != nil {
			return err
		}

		entry, err := generic.NewAuditEntry(m.clock, actor, generic.AuditMemberRemoved, generic.EntryMember,
			string(id), reason, recordOf(member), removal)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return Removal{}, err
	}

	m.log.Info("member removed", "member_id", id, "actor", actor,
		"payments_deleted", removal.PaymentsDeleted, "attendance_deleted", removal.AttendanceDeleted,
		"sales_detached", removal.SalesDetached)
	return removal, nil
}

// =============================================================================
// IDENTITY
// =============================================================================

// Update edits name and/or phone. Plan changes go through ChangePlan.
func (m *Manager) Update(ctx context.Context, id generic.MemberID, name, phone *string) (View, error) {
	var member generic.Member
	err := m.store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		if member, err = tx.GetMember(ctx, id); err != nil {
			return err
		}
		if name != nil {
			member.Name = strings.TrimSpace(*name)
		}
		if phone != nil {
			member.Phone = strings.TrimSpace(*phone)
		}
		if err := validateIdentity(member.Name, member.Phone); err != nil {
			return err
		}
		if owner, taken, err := tx.FindMemberByPhone(ctx, member.Phone); err != nil {
			return err
		} else if taken && owner.ID != id {
			return &generic.DuplicatePhoneError{Phone: member.Phone, ExistingMemberID: owner.ID}
		}
		return tx.UpdateMember(ctx, member)
	})
	if err != nil {
		return View{}, err
	}
	m.log.Info("member updated", "member_id", id)
	return m.view(member), nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Manager) Get(ctx context.Context, id generic.MemberID) (View, error) {
	member, err := m.store.GetMember(ctx, id)
	if err != nil {
		return View{}, err
	}
	return m.view(member), nil
}

// List returns every member ordered by name.
func (m *Manager) List(ctx context.Context) ([]View, error) {
	members, err := m.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]View, len(members))
	for i, member := range members {
		views[i] = m.view(member)
	}
	return views, nil
}

// Expiring returns members whose plan ends within the EXPIRING_SOON window,
// soonest first.
func (m *Manager) Expiring(ctx context.Context) ([]View, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []View
	for _, v := range all {
		if v.Status == StatusExpiringSoon {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].DaysRemaining < *out[j].DaysRemaining })
	return out, nil
}

func (m *Manager) view(member generic.Member) View {
	return NewView(member, generic.Today(m.clock), m.expiringSoonDays)
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateIdentity(name, phone string) error {
	if name == "" {
		return &generic.ValidationError{Field: "name", Message: "required"}
	}
	if phone == "" {
		return &generic.ValidationError{Field: "phone", Message: "required"}
	}
	return nil
}

func validateMethod(method generic.PaymentMethod) error {
	if strings.TrimSpace(string(method)) == "" {
		return &generic.ValidationError{Field: "payment_method", Message: "required"}
	}
	return nil
}
