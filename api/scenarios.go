/*
scenarios.go - Demo data sets for the front desk

PURPOSE:
  Provides pre-built data sets that populate the database with a realistic
  gym: members on every plan, months of payments, visits and shop sales.
  Dates are relative to the business clock so the dashboard always has
  something current to show.

AVAILABLE SCENARIOS:
  front-desk:  A small gym three months into operation
  expiring:    Members spread around their expiration dates
  empty:       Clean database

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register members on past days (clock walked back to each start)
 3. Renew the same way to build payment history
 4. Check members in on past days
 5. Stock the shop and record sales

Every record goes through the same services the API uses, so scenario data
obeys the same rules as data typed at the desk.

USAGE VIA API:
	POST /api/scenarios/load   (X-Admin-Key required)
	{"scenario_id": "front-desk"}

USAGE VIA CLI:
	gymdesk seed front-desk

SEE ALSO:
  - handlers.go: Services wiring
  - cli/seed.go: Command-line loader
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/membership"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/sales"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "front-desk",
		Name:        "Front Desk",
		Description: "Members on every plan, three months of payments, visits and shop sales",
	},
	{
		ID:          "expiring",
		Name:        "Expiring Plans",
		Description: "Members expired, expiring today and expiring this week",
	},
	{
		ID:          "empty",
		Name:        "Empty Gym",
		Description: "No data",
	},
}

// Scenarios lists the available data sets.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Seed(r.Context(), req.ScenarioID); err != nil {
		if generic.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// Seed resets the store and loads the named scenario.
func (h *Handler) Seed(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "front-desk":
		load = h.loadFrontDeskScenario
	case "expiring":
		load = h.loadExpiringScenario
	case "empty":
		load = func(context.Context) error { return nil }
	default:
		return &generic.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", id)}
	}

	rs, ok := h.Store.(resetter)
	if !ok {
		return fmt.Errorf("store %T cannot be reset", h.Store)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.currentScenario = ""
	if err := rs.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	h.log.Info("scenario loaded", "scenario", id)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoMember struct {
	name, phone string
	plan        generic.PlanCode
	// starts are days relative to today: the first registers, the rest renew.
	starts []int
	// visits are days relative to today.
	visits []int
}

func (h *Handler) loadFrontDeskScenario(ctx context.Context) error {
	members := []demoMember{
		{"Ana Gómez", "3001234567", plans.Monthly, []int{-75, -45, -15}, []int{-14, -12, -9, -7, -5, -2, -1, 0}},
		{"Bruno Díaz", "3009876543", plans.Biweekly, []int{-40, -25, -10}, []int{-9, -6, -3, 0}},
		{"Carla Ruiz", "3015550101", plans.Student, []int{-62, -32, -2}, []int{-20, -15, -2, -1}},
		{"Diego Torres", "3025550102", plans.Guided, []int{-29}, []int{-28, -21, -14, -7, 0}},
		{"Elena Vargas", "3035550103", plans.Custom, []int{-88, -58, -28}, []int{-27, -13, -6}},
		{"Felipe Mora", "3045550104", plans.Daily, []int{0}, []int{0}},
		{"Gabriela Ríos", "3055550105", plans.Monthly, []int{-50}, []int{-49, -40, -35, -22}},
		{"Hugo Patiño", "3065550106", plans.Monthly, []int{-31}, []int{-30, -29, -20, -3}},
	}
	ids, err := h.seedMembers(ctx, members)
	if err != nil {
		return err
	}

	products := []sales.NewProduct{
		{Name: "Agua 600ml", Category: "Bebidas", Price: generic.NewAmountFromInt(2500), Stock: 48},
		{Name: "Batido de proteína", Category: "Suplementos", Price: generic.NewAmountFromInt(8000), Stock: 20},
		{Name: "Barra de cereal", Category: "Snacks", Price: generic.NewAmountFromInt(3000), Stock: 30},
		{Name: "Toalla", Category: "Accesorios", Price: generic.NewAmountFromInt(15000), Stock: 6},
	}
	var productIDs []generic.ProductID
	for _, p := range products {
		created, err := h.Sales.AddProduct(ctx, p)
		if err != nil {
			return fmt.Errorf("product %s: %w", p.Name, err)
		}
		productIDs = append(productIDs, created.ID)
	}

	type demoSale struct {
		product  int
		member   int // index into members, -1 for walk-ins
		quantity int
		day      int
		method   generic.PaymentMethod
	}
	demoSales := []demoSale{
		{0, 0, 2, -14, "Efectivo"},
		{1, 0, 1, -9, "Nequi"},
		{0, -1, 3, -8, "Efectivo"},
		{2, 1, 2, -6, "Efectivo"},
		{1, 3, 1, -7, "Nequi"},
		{3, 4, 1, -6, "Tarjeta"},
		{0, -1, 1, -1, "Efectivo"},
		{1, 2, 2, -1, "Nequi"},
		{0, 0, 1, 0, "Efectivo"},
		{2, -1, 1, 0, "Efectivo"},
	}
	for _, s := range demoSales {
		at := h.at(s.day, 18)
		req := sales.SaleRequest{ProductID: productIDs[s.product], Quantity: s.quantity, Method: s.method, SoldAt: &at}
		if s.member >= 0 {
			req.MemberID = &ids[s.member]
		}
		if _, err := h.Sales.RecordSale(ctx, req); err != nil {
			return fmt.Errorf("sale of %s: %w", products[s.product].Name, err)
		}
	}
	return nil
}

func (h *Handler) loadExpiringScenario(ctx context.Context) error {
	// Expirations land at start+30 for Monthly and start+15 for Biweekly.
	members := []demoMember{
		{"Iván Castro", "3105550201", plans.Monthly, []int{-35}, []int{-20, -1}}, // expired 5 days ago
		{"Julia Peña", "3115550202", plans.Monthly, []int{-31}, []int{-3}},       // expired yesterday
		{"Kevin Ortiz", "3125550203", plans.Monthly, []int{-30}, []int{-2}},      // expires today
		{"Laura Silva", "3135550204", plans.Biweekly, []int{-14}, []int{-1}},     // expires tomorrow
		{"Mario León", "3145550205", plans.Student, []int{-27}, []int{-10}},      // expires in 3 days
		{"Nora Cruz", "3155550206", plans.Monthly, []int{-20}, []int{-5, 0}},     // expires in 10 days
		{"Óscar Rey", "3165550207", plans.Daily, []int{-1}, []int{-1}},           // daily pass used yesterday
	}
	_, err := h.seedMembers(ctx, members)
	return err
}

func (h *Handler) seedMembers(ctx context.Context, members []demoMember) ([]generic.MemberID, error) {
	today := generic.Today(h.Clock)
	methods := []generic.PaymentMethod{"Efectivo", "Nequi", "Tarjeta"}

	// Payments are dated by the clock, so the desk's clock is walked back to
	// each start day to spread the history over past months.
	clock := generic.NewFixedClock(h.Clock.Now(), h.loc())
	desk := membership.NewManager(h.Store, h.Catalog, clock, h.log)

	ids := make([]generic.MemberID, len(members))
	for i, m := range members {
		start := today.AddDays(m.starts[0])
		clock.Set(h.at(m.starts[0], 8))
		v, err := desk.Register(ctx, membership.RegisterRequest{
			Name:      m.name,
			Phone:     m.phone,
			Plan:      m.plan,
			Method:    methods[i%len(methods)],
			StartDate: &start,
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", m.name, err)
		}
		ids[i] = v.Member.ID

		for j, offset := range m.starts[1:] {
			start := today.AddDays(offset)
			clock.Set(h.at(offset, 8))
			if _, err := desk.Renew(ctx, v.Member.ID, methods[(i+j+1)%len(methods)], &start); err != nil {
				return nil, fmt.Errorf("renew %s: %w", m.name, err)
			}
		}

		for _, day := range m.visits {
			at := h.at(day, 7+i%12)
			if _, err := h.Attendance.CheckIn(ctx, v.Member.ID, &at); err != nil && !generic.IsConflict(err) {
				return nil, fmt.Errorf("check in %s: %w", m.name, err)
			}
		}
	}
	return ids, nil
}

// at returns hour o'clock on today+offset in the business time zone,
// capped at the current instant.
func (h *Handler) at(offset, hour int) time.Time {
	loc := h.loc()
	t := generic.Today(h.Clock).AddDays(offset).StartIn(loc).Add(time.Duration(hour) * time.Hour)
	if now := h.Clock.Now(); t.After(now) {
		return now
	}
	return t
}
