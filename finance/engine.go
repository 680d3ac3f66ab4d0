/*
Package finance implements the financial aggregation engine.

PURPOSE:
  Read-only rollups over the payment and sales ledgers for a period: revenue
  by category, estimated margin and embedded tax, plan distribution, top
  products, historical series, the full report and the dashboard.

ROUNDING:
  Ledger amounts are summed at full precision and rounded half away from
  zero to 2 places once, when a sum leaves the engine. Total is the sum of
  the rounded membership and product figures, so

    Total == Membership + Products     (to the cent, always)

  Margin and tax are derived from the reported Total.

EMPTY DATA:
  Missing periods, plans or categories report zero, never an error; a gym
  with no history still gets a complete report.

FORMULAS:
  margin = total * (1 - cost_ratio)          default cost_ratio 0.60
  tax    = total * rate / (1 + rate)         default rate 0.19 (tax-inclusive)
  net    = total - tax

SEE ALSO:
  - generic/period.go: Period builders and NamedPeriod
  - sales/ledger.go: SaleRow read API
*/
package finance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/telemetry"
)

var (
	DefaultCostRatio = decimal.RequireFromString("0.60")
	DefaultTaxRate   = decimal.RequireFromString("0.19")
)

const (
	DefaultTopProducts   = 5
	DefaultHistoryMonths = 6
)

// Source is the read side of the store the engine aggregates over.
type Source interface {
	PaymentsInRange(ctx context.Context, from, to time.Time) ([]generic.Payment, error)
	SalesInRange(ctx context.Context, from, to time.Time) ([]generic.SaleRow, error)
	ListMembers(ctx context.Context) ([]generic.Member, error)
	AttendanceInPeriod(ctx context.Context, p generic.Period) ([]generic.Attendance, error)
}

// Rates are the illustrative cost and tax ratios used by reports.
type Rates struct {
	CostRatio decimal.Decimal
	TaxRate   decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{CostRatio: DefaultCostRatio, TaxRate: DefaultTaxRate}
}

func (r Rates) validate() error {
	if r.CostRatio.IsNegative() || r.CostRatio.GreaterThan(decimal.NewFromInt(1)) {
		return &generic.ValidationError{Field: "cost_ratio", Message: "must be between 0 and 1"}
	}
	if r.TaxRate.IsNegative() {
		return &generic.ValidationError{Field: "tax_rate", Message: "must not be negative"}
	}
	return nil
}

// Engine computes reports. It never writes.
type Engine struct {
	src     Source
	catalog *plans.Catalog
	clock   generic.Clock
	log     *slog.Logger
	tracer  trace.Tracer

	rates         Rates
	historyMonths int
}

func NewEngine(src Source, catalog *plans.Catalog, clock generic.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		src:           src,
		catalog:       catalog,
		clock:         clock,
		log:           logger,
		tracer:        otel.Tracer("gymdesk/finance"),
		rates:         DefaultRates(),
		historyMonths: DefaultHistoryMonths,
	}
}

// SetRates replaces the default cost and tax ratios.
func (e *Engine) SetRates(r Rates) error {
	if err := r.validate(); err != nil {
		return err
	}
	e.rates = r
	return nil
}

// SetHistoryMonths sets the dashboard history length. Values below 1 are ignored.
func (e *Engine) SetHistoryMonths(n int) {
	if n > 0 {
		e.historyMonths = n
	}
}

func (e *Engine) Rates() Rates { return e.rates }

// =============================================================================
// LEDGER WINDOW
// =============================================================================

// window is the ledger content of one period, read once per computation.
type window struct {
	period   generic.Period
	payments []generic.Payment
	sales    []generic.SaleRow
}

func (e *Engine) load(ctx context.Context, p generic.Period) (window, error) {
	from, to := p.Bounds(e.clock.Location())
	payments, err := e.src.PaymentsInRange(ctx, from, to)
	if err != nil {
		return window{}, err
	}
	sales, err := e.src.SalesInRange(ctx, from, to)
	if err != nil {
		return window{}, err
	}
	return window{period: p, payments: payments, sales: sales}, nil
}

// =============================================================================
// REVENUE, MARGIN, TAX
// =============================================================================

// Revenue splits a period's income by source. Total = Membership + Products.
type Revenue struct {
	Membership generic.Amount
	Products   generic.Amount
	Total      generic.Amount
}

func revenueOf(payments []generic.Payment, sales []generic.SaleRow) Revenue {
	membership := generic.ZeroAmount()
	for _, p := range payments {
		membership = membership.Add(p.Amount)
	}
	products := generic.ZeroAmount()
	for _, s := range sales {
		products = products.Add(s.Total)
	}
	membership, products = membership.Rounded(), products.Rounded()
	return Revenue{Membership: membership, Products: products, Total: membership.Add(products)}
}

// Margin is total * (1 - costRatio), rounded.
func Margin(total generic.Amount, costRatio decimal.Decimal) generic.Amount {
	return total.Mul(decimal.NewFromInt(1).Sub(costRatio)).Rounded()
}

// Tax extracts the tax embedded in a tax-inclusive total, rounded.
func Tax(total generic.Amount, rate decimal.Decimal) generic.Amount {
	return generic.NewAmount(total.Value.Mul(rate).Div(decimal.NewFromInt(1).Add(rate))).Rounded()
}

// RevenueByCategory sums payments and sales inside p.
func (e *Engine) RevenueByCategory(ctx context.Context, p generic.Period) (Revenue, error) {
	w, err := e.load(ctx, p)
	if err != nil {
		return Revenue{}, err
	}
	return revenueOf(w.payments, w.sales), nil
}

// MarginEstimate is an illustrative gross margin, not cost accounting.
func (e *Engine) MarginEstimate(ctx context.Context, p generic.Period, costRatio decimal.Decimal) (generic.Amount, error) {
	if err := (Rates{CostRatio: costRatio}).validate(); err != nil {
		return generic.Amount{}, err
	}
	rev, err := e.RevenueByCategory(ctx, p)
	if err != nil {
		return generic.Amount{}, err
	}
	return Margin(rev.Total, costRatio), nil
}

// TaxEstimate is a flat illustrative rate, not statutory tax logic.
func (e *Engine) TaxEstimate(ctx context.Context, p generic.Period, taxRate decimal.Decimal) (generic.Amount, error) {
	if err := (Rates{TaxRate: taxRate}).validate(); err != nil {
		return generic.Amount{}, err
	}
	rev, err := e.RevenueByCategory(ctx, p)
	if err != nil {
		return generic.Amount{}, err
	}
	return Tax(rev.Total, taxRate), nil
}

// =============================================================================
// PLAN DISTRIBUTION
// =============================================================================

type PlanCount struct {
	Plan    generic.PlanCode
	Name    string
	Members int
}

// PlanDistribution counts current members per plan. Every catalog plan is
// present; plans no longer in the catalog follow in code order.
func (e *Engine) PlanDistribution(ctx context.Context) ([]PlanCount, error) {
	members, err := e.src.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	return distribution(e.catalog, members), nil
}

func distribution(catalog *plans.Catalog, members []generic.Member) []PlanCount {
	counts := make(map[generic.PlanCode]int)
	for _, m := range members {
		counts[m.Plan]++
	}

	out := make([]PlanCount, 0, len(counts))
	for _, p := range catalog.Plans() {
		out = append(out, PlanCount{Plan: p.Code, Name: p.Name, Members: counts[p.Code]})
		delete(counts, p.Code)
	}
	var stray []generic.PlanCode
	for code := range counts {
		stray = append(stray, code)
	}
	sort.Slice(stray, func(i, j int) bool { return stray[i] < stray[j] })
	for _, code := range stray {
		out = append(out, PlanCount{Plan: code, Name: string(code), Members: counts[code]})
	}
	return out
}

// =============================================================================
// TOP PRODUCTS
// =============================================================================

type ProductRank struct {
	ProductID generic.ProductID
	Name      string
	Category  string
	Quantity  int
	Revenue   generic.Amount
}

// TopProducts ranks products sold in p by quantity, then revenue, then name.
func (e *Engine) TopProducts(ctx context.Context, p generic.Period, limit int) ([]ProductRank, error) {
	w, err := e.load(ctx, p)
	if err != nil {
		return nil, err
	}
	return rankProducts(w.sales, limit), nil
}

func rankProducts(sales []generic.SaleRow, limit int) []ProductRank {
	if limit <= 0 {
		limit = DefaultTopProducts
	}
	byProduct := make(map[generic.ProductID]*ProductRank)
	for _, s := range sales {
		r, ok := byProduct[s.ProductID]
		if !ok {
			r = &ProductRank{ProductID: s.ProductID, Name: s.ProductName, Category: s.Category, Revenue: generic.ZeroAmount()}
			byProduct[s.ProductID] = r
		}
		r.Quantity += s.Quantity
		r.Revenue = r.Revenue.Add(s.Total)
	}

	ranks := make([]ProductRank, 0, len(byProduct))
	for _, r := range byProduct {
		r.Revenue = r.Revenue.Rounded()
		ranks = append(ranks, *r)
	}
	sort.Slice(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ProductID < b.ProductID
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

// =============================================================================
// HISTORICAL SERIES
// =============================================================================

// PeriodSummary is one point of a trend series.
type PeriodSummary struct {
	Period     generic.Period
	Label      string
	Membership generic.Amount
	Products   generic.Amount
	Total      generic.Amount
	Margin     generic.Amount
	Tax        generic.Amount
}

func (e *Engine) summarize(p generic.Period, size generic.PeriodSize, payments []generic.Payment, sales []generic.SaleRow) PeriodSummary {
	rev := revenueOf(payments, sales)
	label := p.Start.String()
	if size == generic.PeriodMonth {
		label = fmt.Sprintf("%04d-%02d", p.Start.Year(), int(p.Start.Month()))
	}
	return PeriodSummary{
		Period:     p,
		Label:      label,
		Membership: rev.Membership,
		Products:   rev.Products,
		Total:      rev.Total,
		Margin:     Margin(rev.Total, e.rates.CostRatio),
		Tax:        Tax(rev.Total, e.rates.TaxRate),
	}
}

// HistoricalSeries returns count consecutive periods of the given size
// ending with the one containing today, oldest first. Empty periods are zero.
func (e *Engine) HistoricalSeries(ctx context.Context, count int, size generic.PeriodSize) ([]PeriodSummary, error) {
	ctx, span := e.tracer.Start(ctx, "finance.historical_series",
		trace.WithAttributes(attribute.Int("count", count), attribute.String("size", string(size))))
	var err error
	defer func() { telemetry.End(span, err) }()

	if count <= 0 {
		err = &generic.ValidationError{Field: "count", Message: "must be positive"}
		return nil, err
	}
	current, err := generic.PeriodContaining(size, generic.Today(e.clock))
	if err != nil {
		return nil, err
	}
	if size == "" {
		size = generic.PeriodMonth
	}

	periods := make([]generic.Period, count)
	for i := range periods {
		periods[i] = current.Shift(size, i-(count-1))
	}

	// One read covering the whole span, bucketed by business day.
	w, err := e.load(ctx, generic.Period{Start: periods[0].Start, End: current.End})
	if err != nil {
		return nil, err
	}
	loc := e.clock.Location()
	paymentBuckets := make([][]generic.Payment, count)
	for _, p := range w.payments {
		if i := indexOf(periods, generic.DateOf(p.PaidAt, loc)); i >= 0 {
			paymentBuckets[i] = append(paymentBuckets[i], p)
		}
	}
	saleBuckets := make([][]generic.SaleRow, count)
	for _, s := range w.sales {
		if i := indexOf(periods, generic.DateOf(s.SoldAt, loc)); i >= 0 {
			saleBuckets[i] = append(saleBuckets[i], s)
		}
	}

	series := make([]PeriodSummary, count)
	for i, p := range periods {
		series[i] = e.summarize(p, size, paymentBuckets[i], saleBuckets[i])
	}
	return series, nil
}

func indexOf(periods []generic.Period, d generic.Date) int {
	for i, p := range periods {
		if p.Contains(d) {
			return i
		}
	}
	return -1
}
