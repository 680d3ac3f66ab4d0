package finance_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/warp/gymdesk/finance"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/store/memory"
	"github.com/warp/gymdesk/telemetry"
)

var bogota, _ = time.LoadLocation(generic.DefaultTimeZone)

func date(y int, m time.Month, d int) generic.Date { return generic.NewDate(y, m, d) }

func at(d generic.Date, hour int) time.Time { return d.StartIn(bogota).Add(time.Duration(hour) * time.Hour) }

func amount(s string) generic.Amount {
	a, err := generic.ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

var today = date(2024, time.March, 15)

// =============================================================================
// LEDGER BUILDER
// =============================================================================

type books struct {
	t     require.TestingT
	ctx   context.Context
	store *memory.Memory
	n     int
}

func newBooks(t require.TestingT) *books {
	return &books{t: t, ctx: context.Background(), store: memory.New()}
}

func (b *books) engine() *finance.Engine {
	clock := generic.FixedClockAt(today, 12, bogota)
	return finance.NewEngine(b.store, plans.DefaultCatalog(), clock, telemetry.Discard())
}

func (b *books) member(id string, plan generic.PlanCode, expiration *generic.Date) generic.MemberID {
	require.NoError(b.t, b.store.InsertMember(b.ctx, generic.Member{
		ID: generic.MemberID(id), Name: id, Phone: "tel-" + id, Plan: plan,
		JoinDate: date(2024, time.January, 1), PlanExpiration: expiration, PlanPrice: generic.ZeroAmount(),
	}))
	return generic.MemberID(id)
}

func (b *books) pay(member generic.MemberID, plan generic.PlanCode, value string, method generic.PaymentMethod, paidAt time.Time) {
	b.n++
	day := generic.DateOf(paidAt, bogota)
	require.NoError(b.t, b.store.InsertPayment(b.ctx, generic.Payment{
		ID: generic.PaymentID(fmt.Sprintf("pay-%03d", b.n)), MemberID: member, Amount: amount(value),
		Method: method, Plan: plan, Period: generic.Period{Start: day, End: day.AddDays(30)}, PaidAt: paidAt,
	}))
}

func (b *books) product(name, category, price string) generic.ProductID {
	id := generic.ProductID("prod-" + name)
	require.NoError(b.t, b.store.InsertProduct(b.ctx, generic.Product{
		ID: id, Name: name, Category: category, Price: amount(price), Stock: 1000,
	}))
	return id
}

func (b *books) sell(product generic.ProductID, qty int, unit string, method generic.PaymentMethod, soldAt time.Time) {
	b.n++
	price := amount(unit)
	require.NoError(b.t, b.store.InsertSale(b.ctx, generic.Sale{
		ID: generic.SaleID(fmt.Sprintf("sale-%03d", b.n)), ProductID: product, Quantity: qty,
		UnitPrice: price, Total: price.MulInt(qty), Method: method, SoldAt: soldAt,
	}))
}

func (b *books) visit(member generic.MemberID, d generic.Date) {
	b.n++
	require.NoError(b.t, b.store.InsertAttendance(b.ctx, generic.Attendance{
		ID: generic.AttendanceID(fmt.Sprintf("att-%03d", b.n)), MemberID: member, CheckedInAt: at(d, 7), Day: d,
	}))
}

// march builds the reference month: 100000 of memberships and 20000 of
// products, plus an older January payment.
func march(t *testing.T) *books {
	b := newBooks(t)
	apr14 := date(2024, time.April, 14)
	mar10 := date(2024, time.March, 10)
	ana := b.member("ana", plans.Monthly, &apr14)
	bob := b.member("bob", plans.Biweekly, &mar10)
	carl := b.member("carl", plans.Student, nil)

	b.pay(ana, plans.Monthly, "70000", "Efectivo", at(today, 10))
	b.pay(bob, plans.Biweekly, "30000", "Nequi", at(date(2024, time.March, 4), 10))
	b.pay(carl, plans.Student, "50000", "Efectivo", at(date(2024, time.January, 20), 10))

	water := b.product("Agua", "Bebidas", "2500")
	b.sell(water, 8, "2500", "Efectivo", at(today, 9))

	b.visit(ana, today)
	b.visit(carl, date(2024, time.March, 2))
	return b
}

// =============================================================================
// REVENUE / MARGIN / TAX
// =============================================================================

func TestRevenueByCategory_MonthScenario(t *testing.T) {
	e := march(t).engine()

	rev, err := e.RevenueByCategory(context.Background(), generic.MonthPeriod(today))
	require.NoError(t, err)

	assert.Equal(t, "100000.00", rev.Membership.String())
	assert.Equal(t, "20000.00", rev.Products.String())
	assert.Equal(t, "120000.00", rev.Total.String())
}

func TestRevenueByCategory_EmptyPeriodIsZero(t *testing.T) {
	e := march(t).engine()

	rev, err := e.RevenueByCategory(context.Background(), generic.MonthPeriod(date(2023, time.June, 1)))
	require.NoError(t, err)
	assert.Equal(t, "0.00", rev.Total.String())
	assert.Equal(t, "0.00", rev.Membership.String())
}

func TestRevenue_RoundsOncePerSum(t *testing.T) {
	b := newBooks(t)
	m := b.member("m", plans.Daily, nil)
	for i := 0; i < 3; i++ {
		b.pay(m, plans.Daily, "0.335", "Efectivo", at(today, 8+i))
	}

	rev, err := b.engine().RevenueByCategory(context.Background(), generic.DayPeriod(today))
	require.NoError(t, err)

	// 1.005 rounds half-up to 1.01; per-entry rounding would give 1.02
	assert.Equal(t, "1.01", rev.Membership.String())
}

func TestMarginAndTax(t *testing.T) {
	ctx := context.Background()
	e := march(t).engine()
	month := generic.MonthPeriod(today)

	margin, err := e.MarginEstimate(ctx, month, finance.DefaultCostRatio)
	require.NoError(t, err)
	assert.Equal(t, "48000.00", margin.String())

	tax, err := e.TaxEstimate(ctx, month, finance.DefaultTaxRate)
	require.NoError(t, err)
	assert.Equal(t, "19159.66", tax.String())

	_, err = e.MarginEstimate(ctx, month, decimal.RequireFromString("1.5"))
	assert.ErrorIs(t, err, generic.ErrValidation)
	_, err = e.TaxEstimate(ctx, month, decimal.RequireFromString("-0.1"))
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// DISTRIBUTION / TOP PRODUCTS
// =============================================================================

func TestPlanDistribution_IncludesEmptyPlans(t *testing.T) {
	b := march(t)
	b.member("old", "LEGACY", nil)

	dist, err := b.engine().PlanDistribution(context.Background())
	require.NoError(t, err)

	got := make(map[generic.PlanCode]int)
	var order []generic.PlanCode
	for _, pc := range dist {
		got[pc.Plan] = pc.Members
		order = append(order, pc.Plan)
	}
	assert.Equal(t, []generic.PlanCode{plans.Daily, plans.Biweekly, plans.Monthly, plans.Student, plans.Guided, plans.Custom, "LEGACY"}, order)
	assert.Equal(t, 0, got[plans.Daily])
	assert.Equal(t, 1, got[plans.Monthly])
	assert.Equal(t, 1, got["LEGACY"])
}

func TestTopProducts_Ordering(t *testing.T) {
	b := newBooks(t)
	bar := b.product("Barra", "Snacks", "2000")
	agua := b.product("Agua", "Bebidas", "2000")
	shake := b.product("Batido", "Suplementos", "1000")
	towel := b.product("Toalla", "Accesorios", "1000")

	b.sell(shake, 5, "1000", "Efectivo", at(today, 8))
	b.sell(bar, 3, "2000", "Efectivo", at(today, 9))
	b.sell(agua, 2, "2000", "Efectivo", at(today, 10))
	b.sell(agua, 1, "2000", "Nequi", at(today, 11))
	b.sell(towel, 3, "1000", "Efectivo", at(today, 12))

	top, err := b.engine().TopProducts(context.Background(), generic.DayPeriod(today), 3)
	require.NoError(t, err)

	// quantity desc, then revenue desc, then name
	require.Len(t, top, 3)
	assert.Equal(t, "Batido", top[0].Name)
	assert.Equal(t, "Agua", top[1].Name)
	assert.Equal(t, 3, top[1].Quantity)
	assert.Equal(t, "6000.00", top[1].Revenue.String())
	assert.Equal(t, "Barra", top[2].Name)
}

// =============================================================================
// HISTORY / REPORT / DASHBOARD
// =============================================================================

func TestHistoricalSeries_ZeroFilledOldestFirst(t *testing.T) {
	e := march(t).engine()

	series, err := e.HistoricalSeries(context.Background(), 3, generic.PeriodMonth)
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"},
		[]string{series[0].Label, series[1].Label, series[2].Label})
	assert.Equal(t, "50000.00", series[0].Membership.String())
	assert.Equal(t, "0.00", series[1].Total.String(), "empty month is zero")
	assert.Equal(t, "0.00", series[1].Margin.String())
	assert.Equal(t, "120000.00", series[2].Total.String())
	assert.Equal(t, "48000.00", series[2].Margin.String())

	_, err = e.HistoricalSeries(context.Background(), 0, generic.PeriodMonth)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestReport(t *testing.T) {
	e := march(t).engine()

	r, err := e.Report(context.Background(), generic.MonthPeriod(today))
	require.NoError(t, err)

	assert.Equal(t, "120000.00", r.Revenue.Total.String())
	assert.Equal(t, "100840.34", r.Net.String())
	assert.Equal(t, 2, r.PaymentCount)
	assert.Equal(t, 1, r.SaleCount)
	assert.Equal(t, 2, r.Attendance)

	require.Len(t, r.ByPlan, 6, "every catalog plan")
	assert.Equal(t, string(plans.Daily), r.ByPlan[0].Key)
	assert.Equal(t, "0.00", r.ByPlan[0].Amount.String())

	require.Len(t, r.ByMethod, 2)
	assert.Equal(t, "Efectivo", r.ByMethod[0].Key)
	assert.Equal(t, 2, r.ByMethod[0].Count)
	assert.Equal(t, "90000.00", r.ByMethod[0].Amount.String())
	assert.Equal(t, "Nequi", r.ByMethod[1].Key)

	require.Len(t, r.ByCategory, 1)
	assert.Equal(t, "Bebidas", r.ByCategory[0].Key)

	again, err := e.Report(context.Background(), generic.MonthPeriod(today))
	require.NoError(t, err)
	assert.Equal(t, r, again, "reports are idempotent")
}

func TestDashboard(t *testing.T) {
	e := march(t).engine()

	d, err := e.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, today, d.Today)
	assert.Equal(t, "90000.00", d.Day.Total.String())
	assert.Equal(t, "90000.00", d.Week.Total.String())
	assert.Equal(t, "120000.00", d.Month.Total.String())
	assert.Equal(t, "2024-03", d.Month.Label)
	assert.Len(t, d.History, finance.DefaultHistoryMonths)
	assert.Len(t, d.PlanDistribution, 6)

	k := d.KPIs
	assert.Equal(t, 3, k.Members)
	assert.Equal(t, 1, k.MembersWithPlan)
	assert.Equal(t, 3, k.MonthTransactions)
	assert.Equal(t, "40000.00", k.AverageTransaction.String())
	assert.Equal(t, "40000.00", k.RevenuePerMember.String())
	assert.Equal(t, "33.33", k.CurrentPlanShare.StringFixed(2))
	assert.Equal(t, "0.67", k.AttendancePerMember.StringFixed(2))
}

func TestDashboard_EmptyGym(t *testing.T) {
	d, err := newBooks(t).engine().Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0.00", d.Month.Total.String())
	assert.Equal(t, "0.00", d.KPIs.AverageTransaction.String())
	assert.True(t, d.KPIs.CurrentPlanShare.IsZero())
	assert.Empty(t, d.TopProducts)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestRevenue_TotalIsSumOfRoundedParts(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := newBooks(rt)
		m := b.member("m", plans.Monthly, nil)
		p := b.product("p", "misc", "1")

		payments := rapid.SliceOfN(rapid.Int64Range(0, 50_000_000), 0, 8).Draw(rt, "payments")
		sales := rapid.SliceOfN(rapid.Int64Range(1, 5_000_000), 0, 8).Draw(rt, "sales")

		wantM, wantP := decimal.Zero, decimal.Zero
		for i, milli := range payments {
			v := decimal.New(milli, -3)
			wantM = wantM.Add(v)
			b.pay(m, plans.Monthly, v.String(), "Efectivo", at(today, i%12))
		}
		for i, milli := range sales {
			v := decimal.New(milli, -3)
			wantP = wantP.Add(v)
			b.sell(p, 1, v.String(), "Efectivo", at(today, i%12))
		}

		e := b.engine()
		rev, err := e.RevenueByCategory(context.Background(), generic.DayPeriod(today))
		require.NoError(rt, err)

		assert.True(rt, rev.Membership.Value.Equal(wantM.Round(2)), "membership %s", rev.Membership)
		assert.True(rt, rev.Products.Value.Equal(wantP.Round(2)), "products %s", rev.Products)
		assert.True(rt, rev.Total.Equal(rev.Membership.Add(rev.Products)))

		r1, err := e.Report(context.Background(), generic.DayPeriod(today))
		require.NoError(rt, err)
		r2, err := e.Report(context.Background(), generic.DayPeriod(today))
		require.NoError(rt, err)
		assert.Equal(rt, r1, r2)
	})
}
