package membership_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gymdesk/attendance"
	"github.com/warp/gymdesk/finance"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/membership"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/sales"
	"github.com/warp/gymdesk/store/memory"
	"github.com/warp/gymdesk/telemetry"
)

var bogota, _ = time.LoadLocation(generic.DefaultTimeZone)

type fixture struct {
	store   *memory.Memory
	clock   *generic.FixedClock
	manager *membership.Manager
	log     *attendance.Log
	sales   *sales.Ledger
}

func newFixture(t *testing.T, today generic.Date) *fixture {
	t.Helper()
	store := memory.New()
	clock := generic.FixedClockAt(today, 10, bogota)
	logger := telemetry.Discard()
	return &fixture{
		store:   store,
		clock:   clock,
		manager: membership.NewManager(store, plans.DefaultCatalog(), clock, logger),
		log:     attendance.NewLog(store, clock, logger),
		sales:   sales.NewLedger(store, clock, logger),
	}
}

func (f *fixture) setDay(d generic.Date) {
	f.clock.Set(time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, bogota))
}

func date(y int, m time.Month, d int) generic.Date { return generic.NewDate(y, m, d) }

func (f *fixture) register(t *testing.T, name, phone string, plan generic.PlanCode) membership.View {
	t.Helper()
	v, err := f.manager.Register(context.Background(), membership.RegisterRequest{
		Name: name, Phone: phone, Plan: plan, Method: "Efectivo",
	})
	require.NoError(t, err)
	return v
}

// =============================================================================
// SCENARIO: Ana's month
// =============================================================================

func TestScenario_AnaMonthlyLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))

	// GIVEN Ana registers on Monthly starting 2024-01-01
	ana := f.register(t, "Ana", "3001234567", plans.Monthly)

	// THEN expiration is 30 days later and one payment covers the period
	assert.Equal(t, "2024-01-31", ana.PlanExpiration.String())
	assert.Equal(t, "70000.00", ana.PlanPrice.String())
	assert.Equal(t, membership.StatusActive, ana.Status)

	payments, err := f.store.PaymentsByMember(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "70000.00", payments[0].Amount.String())
	assert.Equal(t, "[2024-01-01, 2024-01-31)", payments[0].Period.String())

	// WHEN she checks in on 2024-01-15
	f.setDay(date(2024, time.January, 15))
	res, err := f.log.CheckIn(ctx, ana.ID, nil)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCheckedIn)
	assert.Nil(t, res.Warning)

	// AND again the same day
	later := f.clock.Now().Add(6 * time.Hour)
	res, err = f.log.CheckIn(ctx, ana.ID, &later)
	assert.ErrorIs(t, err, generic.ErrAlreadyCheckedIn)
	assert.True(t, res.AlreadyCheckedIn)

	visits, err := f.store.AttendanceByMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, visits, 1, "exactly one attendance for the day")

	// WHEN she renews on 2024-02-05, after expiry
	f.setDay(date(2024, time.February, 5))
	before, err := f.manager.Get(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, membership.StatusExpired, before.Status)

	renewed, err := f.manager.Renew(ctx, ana.ID, "Nequi", nil)
	require.NoError(t, err)

	// THEN the new period runs 30 calendar days from the renewal day
	assert.Equal(t, "2024-03-06", renewed.PlanExpiration.String())
	assert.Equal(t, membership.StatusActive, renewed.Status)

	payments, err = f.store.PaymentsByMember(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "70000.00", payments[0].Amount.String())
	assert.Equal(t, "[2024-02-05, 2024-03-06)", payments[0].Period.String())
}

// =============================================================================
// REGISTER
// =============================================================================

func TestRegister_DuplicatePhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	ana := f.register(t, "Ana", "3001234567", plans.Monthly)

	_, err := f.manager.Register(ctx, membership.RegisterRequest{
		Name: "Impostor", Phone: " 3001234567 ", Plan: plans.Daily, Method: "Efectivo",
	})

	var dup *generic.DuplicatePhoneError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, ana.ID, dup.ExistingMemberID)

	members, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))

	cases := []struct {
		name string
		req  membership.RegisterRequest
		want error
	}{
		{"missing name", membership.RegisterRequest{Phone: "1", Plan: plans.Monthly, Method: "Efectivo"}, generic.ErrValidation},
		{"missing phone", membership.RegisterRequest{Name: "A", Plan: plans.Monthly, Method: "Efectivo"}, generic.ErrValidation},
		{"missing method", membership.RegisterRequest{Name: "A", Phone: "1", Plan: plans.Monthly}, generic.ErrValidation},
		{"unknown plan", membership.RegisterRequest{Name: "A", Phone: "1", Plan: "WEEKLY", Method: "Efectivo"}, generic.ErrUnknownPlan},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.Register(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegister_BackdatedStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 20))
	start := date(2024, time.January, 10)

	v, err := f.manager.Register(ctx, membership.RegisterRequest{
		Name: "Luis", Phone: "310", Plan: plans.Biweekly, Method: "Efectivo", StartDate: &start,
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-25", v.PlanExpiration.String())
	assert.Equal(t, start, v.JoinDate)

	payments, err := f.store.PaymentsByMember(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, start, payments[0].Period.Start)
	assert.True(t, f.clock.Now().Equal(payments[0].PaidAt), "paid when registered, not on the start day")
}

func TestRegister_BackdatedRevenueLandsWhenPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.February, 10))
	start := date(2024, time.January, 1)

	// GIVEN a Monthly registration typed on 02-10 for a plan started 01-01
	_, err := f.manager.Register(ctx, membership.RegisterRequest{
		Name: "Marta", Phone: "311", Plan: plans.Monthly, Method: "Nequi", StartDate: &start,
	})
	require.NoError(t, err)

	// THEN February carries the payment and January stays as reported
	engine := finance.NewEngine(f.store, plans.DefaultCatalog(), f.clock, telemetry.Discard())
	feb, err := engine.RevenueByCategory(ctx, generic.MonthPeriod(date(2024, time.February, 1)))
	require.NoError(t, err)
	assert.Equal(t, "70000.00", feb.Membership.String())

	jan, err := engine.RevenueByCategory(ctx, generic.MonthPeriod(date(2024, time.January, 1)))
	require.NoError(t, err)
	assert.Equal(t, "0.00", jan.Membership.String())
}

func TestRenew_FutureStartPaidToday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	v := f.register(t, "Ana", "300", plans.Monthly)

	// WHEN the next month is paid in advance on 01-25
	f.setDay(date(2024, time.January, 25))
	next := date(2024, time.January, 31)
	renewed, err := f.manager.Renew(ctx, v.ID, "Efectivo", &next)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", renewed.PlanExpiration.String())

	// THEN the money is dated the day it was taken
	payments, err := f.store.PaymentsByMember(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	for _, p := range payments {
		if p.Period.Start.Equal(next) {
			assert.Equal(t, date(2024, time.January, 25), generic.DateOf(p.PaidAt, bogota))
		}
	}
}

// failingPayments makes InsertPayment fail so atomicity can be observed.
type failingPayments struct {
	*memory.Memory
}

func (s failingPayments) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return s.Memory.WithTx(ctx, func(tx generic.Store) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct{ generic.Store }

func (failingTx) InsertPayment(context.Context, generic.Payment) error {
	return generic.Persistence("insert payment", errors.New("disk full"))
}

func TestRegister_IsAtomic(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clock := generic.FixedClockAt(date(2024, time.January, 1), 10, bogota)
	m := membership.NewManager(failingPayments{store}, plans.DefaultCatalog(), clock, telemetry.Discard())

	// WHEN the payment insert fails after the member insert
	_, err := m.Register(ctx, membership.RegisterRequest{Name: "Ana", Phone: "300", Plan: plans.Monthly, Method: "Efectivo"})

	// THEN the caller sees the persistence error and no member exists
	assert.ErrorIs(t, err, generic.ErrPersistence)
	assert.True(t, generic.IsRetryable(err))
	_, found, err := store.FindMemberByPhone(ctx, "300")
	require.NoError(t, err)
	assert.False(t, found)
}

// =============================================================================
// RENEW / CHANGE PLAN
// =============================================================================

func TestRenew_ExtendsActiveMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	v := f.register(t, "Ana", "300", plans.Monthly)

	f.setDay(date(2024, time.January, 20))
	renewed, err := f.manager.Renew(ctx, v.ID, "Efectivo", nil)
	require.NoError(t, err)

	assert.True(t, renewed.PlanExpiration.After(*v.PlanExpiration))
	assert.Equal(t, "2024-02-19", renewed.PlanExpiration.String(), "starts today, does not stack")
}

func TestRenew_SameDayKeepsExpiration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	v := f.register(t, "Ana", "300", plans.Monthly)

	// WHEN the plan is renewed on the registration day
	renewed, err := f.manager.Renew(ctx, v.ID, "Efectivo", nil)
	require.NoError(t, err)

	// THEN the period restarts today and the expiration does not move
	assert.Equal(t, "2024-01-31", renewed.PlanExpiration.String())
	assert.Equal(t, *v.PlanExpiration, *renewed.PlanExpiration)

	// AND both payments are kept
	payments, err := f.store.PaymentsByMember(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRenew_UnknownMember(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 1))
	_, err := f.manager.Renew(context.Background(), "ghost", "Efectivo", nil)
	assert.ErrorIs(t, err, generic.ErrMemberNotFound)
}

func TestRenew_DailyRecordsVisitOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.March, 1))
	v := f.register(t, "Pedro", "320", plans.Daily)
	assert.Equal(t, "2024-03-02", v.PlanExpiration.String())

	// GIVEN Pedro checked in on a later day and was refused
	f.setDay(date(2024, time.March, 4))
	_, err := f.log.CheckIn(ctx, v.ID, nil)
	require.ErrorIs(t, err, generic.ErrDailyPassExpired)

	// WHEN he renews the daily pass
	renewed, err := f.manager.Renew(ctx, v.ID, "Efectivo", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", renewed.PlanExpiration.String())

	// THEN the renewal counts as today's visit
	visits, err := f.store.AttendanceByMember(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, date(2024, time.March, 4), visits[0].Day)

	// AND a second renewal the same day does not add another visit
	_, err = f.manager.Renew(ctx, v.ID, "Efectivo", nil)
	require.NoError(t, err)
	visits, err = f.store.AttendanceByMember(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, visits, 1)

	res, err := f.log.CheckIn(ctx, v.ID, nil)
	assert.ErrorIs(t, err, generic.ErrAlreadyCheckedIn)
	assert.True(t, res.AlreadyCheckedIn)
}

func TestChangePlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	v := f.register(t, "Ana", "300", plans.Monthly)

	f.setDay(date(2024, time.January, 10))
	changed, err := f.manager.ChangePlan(ctx, v.ID, plans.Guided, "Tarjeta", nil)
	require.NoError(t, err)
	assert.Equal(t, plans.Guided, changed.Plan)
	assert.Equal(t, "130000.00", changed.PlanPrice.String())

	payments, err := f.store.PaymentsByMember(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, plans.Guided, payments[0].Plan)

	_, err = f.manager.ChangePlan(ctx, v.ID, "WEEKLY", "Tarjeta", nil)
	assert.ErrorIs(t, err, generic.ErrUnknownPlan)
	still, err := f.manager.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.Guided, still.Plan)
}

func TestPriceSnapshot_NotRetroactive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	v := f.register(t, "Ana", "300", plans.Monthly)

	// GIVEN the catalog raises the Monthly price
	raised, err := plans.NewCatalog(plans.Plan{Code: plans.Monthly, Name: "Monthly",
		Price: generic.NewAmountFromInt(80000), ValidityDays: 30})
	require.NoError(t, err)
	m := membership.NewManager(f.store, raised, f.clock, telemetry.Discard())

	// THEN Ana keeps her price until she renews
	got, err := m.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "70000.00", got.PlanPrice.String())

	renewed, err := m.Renew(ctx, v.ID, "Efectivo", nil)
	require.NoError(t, err)
	assert.Equal(t, "80000.00", renewed.PlanPrice.String())
}

// =============================================================================
// REMOVE
// =============================================================================

func TestRemove_Cascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	ana := f.register(t, "Ana", "300", plans.Monthly)
	bob := f.register(t, "Bob", "301", plans.Monthly)

	_, err := f.log.CheckIn(ctx, ana.ID, nil)
	require.NoError(t, err)
	water, err := f.sales.AddProduct(ctx, sales.NewProduct{Name: "Agua", Category: "Bebidas", Price: generic.NewAmountFromInt(2500), Stock: 5})
	require.NoError(t, err)
	sale, err := f.sales.RecordSale(ctx, sales.SaleRequest{ProductID: water.ID, MemberID: &ana.ID, Quantity: 1, Method: "Efectivo"})
	require.NoError(t, err)

	// WHEN Ana is removed
	removal, err := f.manager.Remove(ctx, ana.ID, "admin", "left the gym")
	require.NoError(t, err)
	assert.Equal(t, membership.Removal{MemberID: ana.ID, PaymentsDeleted: 1, AttendanceDeleted: 1, SalesDetached: 1}, removal)

	// THEN her ledgers are empty and her sale survives without her
	payments, err := f.store.PaymentsByMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	visits, err := f.store.AttendanceByMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Empty(t, visits)

	kept, err := f.store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.MemberID)
	assert.Equal(t, "2500.00", kept.Total.String())

	// Bob is untouched
	bobPayments, err := f.store.PaymentsByMember(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, bobPayments, 1)

	audit, err := f.store.QueryAudit(ctx, generic.AuditFilter{Kind: generic.EntryMember, EntryID: string(ana.ID)})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, generic.AuditMemberRemoved, audit[0].Action)
	assert.Contains(t, string(audit[0].Before), `"phone":"300"`)

	_, err = f.manager.Remove(ctx, ana.ID, "admin", "again")
	assert.ErrorIs(t, err, generic.ErrMemberNotFound)
}

func TestRemove_RequiresActor(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 1))
	v := f.register(t, "Ana", "300", plans.Monthly)
	_, err := f.manager.Remove(context.Background(), v.ID, " ", "")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// IDENTITY / STATUS
// =============================================================================

func TestUpdate_PhoneUniqueness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	ana := f.register(t, "Ana", "300", plans.Monthly)
	f.register(t, "Bob", "301", plans.Monthly)

	taken := "301"
	_, err := f.manager.Update(ctx, ana.ID, nil, &taken)
	assert.ErrorIs(t, err, generic.ErrDuplicatePhone)

	name, own := "Ana María", "300"
	v, err := f.manager.Update(ctx, ana.ID, &name, &own)
	require.NoError(t, err)
	assert.Equal(t, "Ana María", v.Name)
}

func TestStatusOf(t *testing.T) {
	today := date(2024, time.January, 10)
	exp := func(offset int) *generic.Date { d := today.AddDays(offset); return &d }

	cases := []struct {
		expiration *generic.Date
		want       membership.Status
	}{
		{nil, membership.StatusActive},
		{exp(-1), membership.StatusExpired},
		{exp(0), membership.StatusExpiringSoon},
		{exp(3), membership.StatusExpiringSoon},
		{exp(4), membership.StatusActive},
	}
	for _, tc := range cases {
		got, _ := membership.StatusOf(tc.expiration, today, membership.DefaultExpiringSoonDays)
		assert.Equal(t, tc.want, got, "%v", tc.expiration)
	}
}

func TestExpiring_SoonestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, date(2024, time.January, 1))
	f.register(t, "Monthly", "1", plans.Monthly)

	f.setDay(date(2024, time.January, 15))
	f.register(t, "Biweekly", "2", plans.Biweekly) // expires 01-30

	f.setDay(date(2024, time.January, 28))
	expiring, err := f.manager.Expiring(ctx)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, "Biweekly", expiring[0].Name)
	assert.Equal(t, 2, *expiring[0].DaysRemaining)
	assert.Equal(t, 3, *expiring[1].DaysRemaining)
}
