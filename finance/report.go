package finance

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/telemetry"
)

// =============================================================================
// FINANCIAL REPORT
// =============================================================================

// Breakdown is one line of a grouped total.
type Breakdown struct {
	Key    string
	Count  int
	Amount generic.Amount
}

// Report is the financial summary of a period.
type Report struct {
	Period  generic.Period
	Rates   Rates
	Revenue Revenue
	Margin  generic.Amount
	Tax     generic.Amount
	Net     generic.Amount

	ByPlan     []Breakdown // membership revenue per plan, every catalog plan present
	ByMethod   []Breakdown // payments and sales combined
	ByCategory []Breakdown // product revenue per category

	PaymentCount int
	SaleCount    int
	Attendance   int
	TopProducts  []ProductRank
}

// Report builds the full financial summary of p. With no writes in between,
// two calls return identical reports.
func (e *Engine) Report(ctx context.Context, p generic.Period) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "finance.report",
		trace.WithAttributes(attribute.String("period", p.String())))
	var err error
	defer func() { telemetry.End(span, err) }()

	w, err := e.load(ctx, p)
	if err != nil {
		return Report{}, err
	}
	visits, err := e.src.AttendanceInPeriod(ctx, p)
	if err != nil {
		return Report{}, err
	}

	rev := revenueOf(w.payments, w.sales)
	tax := Tax(rev.Total, e.rates.TaxRate)
	r := Report{
		Period:       p,
		Rates:        e.rates,
		Revenue:      rev,
		Margin:       Margin(rev.Total, e.rates.CostRatio),
		Tax:          tax,
		Net:          rev.Total.Sub(tax),
		ByPlan:       e.byPlan(w.payments),
		ByMethod:     byMethod(w.payments, w.sales),
		ByCategory:   byCategory(w.sales),
		PaymentCount: len(w.payments),
		SaleCount:    len(w.sales),
		Attendance:   len(visits),
		TopProducts:  rankProducts(w.sales, DefaultTopProducts),
	}

	span.SetAttributes(attribute.String("revenue.total", rev.Total.String()))
	e.log.Debug("financial report computed", "period", p.String(), "total", rev.Total.String(),
		"payments", r.PaymentCount, "sales", r.SaleCount)
	return r, nil
}

// grouper accumulates unrounded sums per key.
type grouper struct {
	order  []string
	counts map[string]int
	sums   map[string]generic.Amount
}

func newGrouper(keys ...string) *grouper {
	g := &grouper{counts: make(map[string]int), sums: make(map[string]generic.Amount)}
	for _, k := range keys {
		g.touch(k)
	}
	return g
}

func (g *grouper) touch(key string) {
	if _, ok := g.sums[key]; !ok {
		g.order = append(g.order, key)
		g.sums[key] = generic.ZeroAmount()
	}
}

func (g *grouper) add(key string, amount generic.Amount) {
	g.touch(key)
	g.counts[key]++
	g.sums[key] = g.sums[key].Add(amount)
}

// lines returns rounded lines; fixed keys keep their order, the rest are
// sorted by amount descending then key.
func (g *grouper) lines(fixed int) []Breakdown {
	out := make([]Breakdown, len(g.order))
	for i, k := range g.order {
		out[i] = Breakdown{Key: k, Count: g.counts[k], Amount: g.sums[k].Rounded()}
	}
	rest := out[fixed:]
	sort.SliceStable(rest, func(i, j int) bool {
		if !rest[i].Amount.Equal(rest[j].Amount) {
			return rest[i].Amount.GreaterThan(rest[j].Amount)
		}
		return rest[i].Key < rest[j].Key
	})
	return out
}

func (e *Engine) byPlan(payments []generic.Payment) []Breakdown {
	codes := e.catalog.Codes()
	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = string(c)
	}
	g := newGrouper(keys...)
	for _, p := range payments {
		g.add(string(p.Plan), p.Amount)
	}
	return g.lines(len(keys))
}

func byMethod(payments []generic.Payment, sales []generic.SaleRow) []Breakdown {
	g := newGrouper()
	for _, p := range payments {
		g.add(string(p.Method), p.Amount)
	}
	for _, s := range sales {
		g.add(string(s.Method), s.Total)
	}
	return g.lines(0)
}

func byCategory(sales []generic.SaleRow) []Breakdown {
	g := newGrouper()
	for _, s := range sales {
		g.add(s.Category, s.Total)
	}
	return g.lines(0)
}

// =============================================================================
// DASHBOARD
// =============================================================================

// KPIs are derived ratios for the current month.
type KPIs struct {
	AverageTransaction  generic.Amount  // month total / (payments + sales)
	RevenuePerMember    generic.Amount  // month total / members
	CurrentPlanShare    decimal.Decimal // percent of members whose expiration is today or later
	AttendancePerMember decimal.Decimal // month visits / members
	Members             int
	MembersWithPlan     int
	MonthTransactions   int
	MonthAttendance     int
}

// Dashboard is the front-office overview as of today.
type Dashboard struct {
	Today            generic.Date
	Day              PeriodSummary
	Week             PeriodSummary
	Month            PeriodSummary
	PlanDistribution []PlanCount
	History          []PeriodSummary
	TopProducts      []ProductRank
	KPIs             KPIs
}

func (e *Engine) Dashboard(ctx context.Context) (Dashboard, error) {
	ctx, span := e.tracer.Start(ctx, "finance.dashboard")
	var err error
	defer func() { telemetry.End(span, err) }()

	today := generic.Today(e.clock)
	d := Dashboard{Today: today}

	month, err := e.load(ctx, generic.MonthPeriod(today))
	if err != nil {
		return Dashboard{}, err
	}
	d.Month = e.summarize(month.period, generic.PeriodMonth, month.payments, month.sales)
	d.TopProducts = rankProducts(month.sales, DefaultTopProducts)

	for _, part := range []struct {
		size generic.PeriodSize
		into *PeriodSummary
	}{
		{generic.PeriodDay, &d.Day},
		{generic.PeriodWeek, &d.Week},
	} {
		p, _ := generic.PeriodContaining(part.size, today)
		var w window
		if w, err = e.load(ctx, p); err != nil {
			return Dashboard{}, err
		}
		*part.into = e.summarize(p, part.size, w.payments, w.sales)
	}

	members, err := e.src.ListMembers(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	d.PlanDistribution = distribution(e.catalog, members)

	if d.History, err = e.HistoricalSeries(ctx, e.historyMonths, generic.PeriodMonth); err != nil {
		return Dashboard{}, err
	}

	visits, err := e.src.AttendanceInPeriod(ctx, month.period)
	if err != nil {
		return Dashboard{}, err
	}
	d.KPIs = kpis(d.Month.Total, len(month.payments)+len(month.sales), members, len(visits), today)
	return d, nil
}

func kpis(total generic.Amount, transactions int, members []generic.Member, visits int, today generic.Date) KPIs {
	k := KPIs{
		AverageTransaction:  generic.ZeroAmount(),
		RevenuePerMember:    generic.ZeroAmount(),
		CurrentPlanShare:    decimal.Zero,
		AttendancePerMember: decimal.Zero,
		Members:             len(members),
		MonthTransactions:   transactions,
		MonthAttendance:     visits,
	}
	for _, m := range members {
		if m.PlanExpiration != nil && !m.PlanExpiration.Before(today) {
			k.MembersWithPlan++
		}
	}
	if transactions > 0 {
		k.AverageTransaction = generic.NewAmount(total.Value.Div(decimal.NewFromInt(int64(transactions)))).Rounded()
	}
	if n := decimal.NewFromInt(int64(len(members))); len(members) > 0 {
		k.RevenuePerMember = generic.NewAmount(total.Value.Div(n)).Rounded()
		k.CurrentPlanShare = decimal.NewFromInt(int64(k.MembersWithPlan)).Mul(decimal.NewFromInt(100)).Div(n).Round(2)
		k.AttendancePerMember = decimal.NewFromInt(int64(visits)).Div(n).Round(2)
	}
	return k
}
