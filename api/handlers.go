/*
handlers.go - HTTP API handlers for the gym front desk

PURPOSE:
  Exposes the membership, attendance, sales and finance services via REST.
  Handles HTTP request/response and JSON serialization, and delegates every
  rule to the domain packages.

ENDPOINTS:
  Members:
    POST   /api/members                  Register (first payment included)
    GET    /api/members                  List with billing status
    GET    /api/members/expiring         Plans ending within the warning window
    GET    /api/members/{id}             Member view
    PATCH  /api/members/{id}             Edit name/phone
    DELETE /api/members/{id}             Remove with cascade (admin)
    POST   /api/members/{id}/renew       Renew current plan
    POST   /api/members/{id}/plan        Change plan and renew
    POST   /api/members/{id}/checkins    Check in
    GET    /api/members/{id}/payments    Payment history
    GET    /api/members/{id}/attendance  Visit history
    GET    /api/members/{id}/sales       Purchases

  Attendance:
    GET    /api/attendance/calendar      Visits per day of a month
    GET    /api/attendance/counts        Visits today and this month

  Catalog and retail:
    GET    /api/plans
    GET    /api/products, POST /api/products, POST /api/products/{id}/restock
    GET    /api/sales, POST /api/sales

  Finance:
    GET    /api/finance/report           ?period=month or ?start=&end=
    GET    /api/finance/dashboard
    GET    /api/finance/history          ?count=6&size=month

  Admin (X-Admin-Key):
    PATCH/DELETE /api/admin/payments/{id}, PATCH/DELETE /api/admin/sales/{id}
    GET    /api/admin/audit

ERROR HANDLING:
  Errors are returned as JSON with a status derived from the domain error:
  - 400: Validation errors, unknown plan, invalid period
  - 404: Member, payment, sale or product not found
  - 409: Duplicate phone
  - 422: Daily pass expired, insufficient stock
  - 503: Persistence failure (retryable)
  A second check-in on the same day is not an error: 200 with
  already_checked_in set.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo data sets
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/gymdesk/attendance"
	"github.com/warp/gymdesk/finance"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/membership"
	"github.com/warp/gymdesk/payments"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/sales"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services are the domain components the API delegates to.
type Services struct {
	Store      generic.TxStore
	Catalog    *plans.Catalog
	Clock      generic.Clock
	Members    *membership.Manager
	Attendance *attendance.Log
	Payments   *payments.Ledger
	Sales      *sales.Ledger
	Finance    *finance.Engine
}

// NewServices wires every domain component over one store and clock.
func NewServices(store generic.TxStore, catalog *plans.Catalog, clock generic.Clock, logger *slog.Logger) Services {
	return Services{
		Store:      store,
		Catalog:    catalog,
		Clock:      clock,
		Members:    membership.NewManager(store, catalog, clock, logger.With("component", "membership")),
		Attendance: attendance.NewLog(store, clock, logger.With("component", "attendance")),
		Payments:   payments.NewLedger(store, clock, logger.With("component", "payments")),
		Sales:      sales.NewLedger(store, clock, logger.With("component", "sales")),
		Finance:    finance.NewEngine(store, catalog, clock, logger.With("component", "finance")),
	}
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services
	log *slog.Logger

	mu              sync.RWMutex
	currentScenario string
}

func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{Services: svc, log: logger}
}

func (h *Handler) loc() *time.Location { return h.Clock.Location() }

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

// RegisterMember creates a member and posts the first payment.
// POST /api/members
func (h *Handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var req RegisterMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, ok := h.optionalDate(w, "start_date", req.StartDate)
	if !ok {
		return
	}

	v, err := h.Members.Register(r.Context(), membership.RegisterRequest{
		Name:      req.Name,
		Phone:     req.Phone,
		Plan:      plans.ParseCode(req.Plan),
		Method:    generic.PaymentMethod(req.PaymentMethod),
		StartDate: start,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(v, h.loc()))
}

// ListMembers returns all members ordered by name.
// GET /api/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	views, err := h.Members.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := views[:0]
		for _, v := range views {
			if strings.EqualFold(string(v.Status), status) {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	writeJSON(w, http.StatusOK, toMemberDTOs(views, h.loc()))
}

// ListExpiring returns members whose plan ends soon, soonest first.
// GET /api/members/expiring
func (h *Handler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	views, err := h.Members.Expiring(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTOs(views, h.loc()))
}

// GetMember returns one member.
// GET /api/members/{id}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	v, err := h.Members.Get(r.Context(), memberID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(v, h.loc()))
}

// UpdateMember edits name and/or phone.
// PATCH /api/members/{id}
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req UpdateMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Members.Update(r.Context(), memberID(r), req.Name, req.Phone)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(v, h.loc()))
}

// RemoveMember deletes a member with its payments and attendance.
// DELETE /api/members/{id}?reason=...
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	removal, err := h.Members.Remove(r.Context(), memberID(r), actorFrom(r.Context()), r.URL.Query().Get("reason"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removal)
}

// RenewMember starts a new period on the member's plan.
// POST /api/members/{id}/renew
func (h *Handler) RenewMember(w http.ResponseWriter, r *http.Request) {
	var req RenewRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, ok := h.optionalDate(w, "start_date", req.StartDate)
	if !ok {
		return
	}
	v, err := h.Members.Renew(r.Context(), memberID(r), generic.PaymentMethod(req.PaymentMethod), start)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(v, h.loc()))
}

// ChangePlan switches plan and renews on it.
// POST /api/members/{id}/plan
func (h *Handler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req ChangePlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, ok := h.optionalDate(w, "start_date", req.StartDate)
	if !ok {
		return
	}
	v, err := h.Members.ChangePlan(r.Context(), memberID(r), plans.ParseCode(req.Plan),
		generic.PaymentMethod(req.PaymentMethod), start)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(v, h.loc()))
}

// CheckIn records today's visit. A repeat visit is reported, not failed.
// POST /api/members/{id}/checkins
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if !h.decode(w, r, &req) {
		return
	}
	var at *time.Time
	if req.At != "" {
		t, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at (use RFC 3339)", err)
			return
		}
		at = &t
	}

	res, err := h.Attendance.CheckIn(r.Context(), memberID(r), at)
	switch {
	case errors.Is(err, generic.ErrAlreadyCheckedIn):
		writeJSON(w, http.StatusOK, toCheckInResponse(res, h.loc()))
	case err != nil:
		h.writeDomainError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, toCheckInResponse(res, h.loc()))
	}
}

// MemberPayments returns a member's payments, newest first.
// GET /api/members/{id}/payments
func (h *Handler) MemberPayments(w http.ResponseWriter, r *http.Request) {
	history, err := h.Payments.History(r.Context(), memberID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]PaymentDTO, len(history))
	for i, p := range history {
		out[i] = toPaymentDTO(p, h.loc())
	}
	writeJSON(w, http.StatusOK, out)
}

// MemberAttendance returns a member's visits, newest first.
// GET /api/members/{id}/attendance
func (h *Handler) MemberAttendance(w http.ResponseWriter, r *http.Request) {
	visits, err := h.Attendance.History(r.Context(), memberID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]AttendanceDTO, len(visits))
	for i, a := range visits {
		out[i] = toAttendanceDTO(a, h.loc())
	}
	writeJSON(w, http.StatusOK, out)
}

// MemberSales returns a member's purchases, newest first.
// GET /api/members/{id}/sales
func (h *Handler) MemberSales(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Sales.ByMember(r.Context(), memberID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleRows(rows))
}

// =============================================================================
// ATTENDANCE ENDPOINTS
// =============================================================================

// AttendanceCalendar returns visits per day for a month, zero-filled.
// GET /api/attendance/calendar?year=2024&month=3&member_id=...
func (h *Handler) AttendanceCalendar(w http.ResponseWriter, r *http.Request) {
	today := generic.Today(h.Clock)
	q := r.URL.Query()
	year, month := today.Year(), int(today.Month())
	var err error
	if v := q.Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
	}
	if v := q.Get("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month", err)
			return
		}
	}
	var member *generic.MemberID
	if v := q.Get("member_id"); v != "" {
		id := generic.MemberID(v)
		member = &id
	}

	days, err := h.Attendance.MonthCalendar(r.Context(), year, time.Month(month), member)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// AttendanceCounts returns visits today and in the current month.
// GET /api/attendance/counts
func (h *Handler) AttendanceCounts(w http.ResponseWriter, r *http.Request) {
	c, err := h.Attendance.Counts(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// =============================================================================
// CATALOG, PRODUCT AND SALES ENDPOINTS
// =============================================================================

// ListPlans returns the plan catalog in display order.
// GET /api/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	all := h.Catalog.Plans()
	out := make([]PlanDTO, len(all))
	for i, p := range all {
		out[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateProduct adds a product to the shop.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	price, err := generic.ParseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}
	p, err := h.Sales.AddProduct(r.Context(), sales.NewProduct{
		Name: req.Name, Category: req.Category, Price: price, Stock: req.Stock,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// ListProducts returns every product.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Sales.ListProducts(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]ProductDTO, len(products))
	for i, p := range products {
		out[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// RestockProduct adds units to stock.
// POST /api/products/{id}/restock
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Sales.Restock(r.Context(), generic.ProductID(chi.URLParam(r, "id")), req.Units)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// RecordSale sells a product, optionally to a member.
// POST /api/sales
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	sale := sales.SaleRequest{
		ProductID: generic.ProductID(req.ProductID),
		Quantity:  req.Quantity,
		Method:    generic.PaymentMethod(req.PaymentMethod),
	}
	if req.MemberID != nil && *req.MemberID != "" {
		id := generic.MemberID(*req.MemberID)
		sale.MemberID = &id
	}
	if req.SoldAt != "" {
		t, err := time.Parse(time.RFC3339, req.SoldAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sold_at (use RFC 3339)", err)
			return
		}
		sale.SoldAt = &t
	}

	row, err := h.Sales.RecordSale(r.Context(), sale)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleRowDTO(row, h.loc()))
}

// ListSales returns sales in a period, oldest first.
// GET /api/sales?period=day
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	p, ok := h.period(w, r)
	if !ok {
		return
	}
	rows, err := h.Sales.InRange(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleRows(rows))
}

func (h *Handler) saleRows(rows []generic.SaleRow) []SaleDTO {
	out := make([]SaleDTO, len(rows))
	for i, row := range rows {
		out[i] = toSaleRowDTO(row, h.loc())
	}
	return out
}

// =============================================================================
// FINANCE ENDPOINTS
// =============================================================================

// FinancialReport summarizes a period.
// GET /api/finance/report?period=month | ?start=2024-01-01&end=2024-02-01
func (h *Handler) FinancialReport(w http.ResponseWriter, r *http.Request) {
	p, ok := h.period(w, r)
	if !ok {
		return
	}
	report, err := h.Finance.Report(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToReportDTO(report))
}

// Dashboard returns the front-office overview.
// GET /api/finance/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Finance.Dashboard(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}

// History returns a trend series, oldest first.
// GET /api/finance/history?count=6&size=month
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	count := finance.DefaultHistoryMonths
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n > 120 {
			writeError(w, http.StatusBadRequest, "Invalid count", err)
			return
		}
		count = n
	}
	size := generic.PeriodSize(r.URL.Query().Get("size"))

	series, err := h.Finance.HistoricalSeries(r.Context(), count, size)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodSummaryDTOs(series))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// CorrectPayment overwrites fields of a payment with an audit entry.
// PATCH /api/admin/payments/{id}
func (h *Handler) CorrectPayment(w http.ResponseWriter, r *http.Request) {
	var req CorrectPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := generic.PaymentID(chi.URLParam(r, "id"))

	var c payments.Correction
	if req.Amount != nil {
		a, err := generic.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		c.Amount = &a
	}
	if req.PaymentMethod != nil {
		m := generic.PaymentMethod(*req.PaymentMethod)
		c.Method = &m
	}
	if req.PeriodStart != nil || req.PeriodEnd != nil {
		current, err := h.Store.GetPayment(r.Context(), id)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		p := current.Period
		if req.PeriodStart != nil {
			if p.Start, err = generic.ParseDate(*req.PeriodStart); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid period_start", err)
				return
			}
		}
		if req.PeriodEnd != nil {
			if p.End, err = generic.ParseDate(*req.PeriodEnd); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid period_end", err)
				return
			}
		}
		c.Period = &p
	}
	if req.PaidAt != nil {
		t, err := time.Parse(time.RFC3339, *req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at (use RFC 3339)", err)
			return
		}
		c.PaidAt = &t
	}

	p, err := h.Payments.Correct(r.Context(), id, c, actorFrom(r.Context()), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p, h.loc()))
}

// DeletePayment removes a payment with an audit entry.
// DELETE /api/admin/payments/{id}?reason=...
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	err := h.Payments.Delete(r.Context(), generic.PaymentID(chi.URLParam(r, "id")),
		actorFrom(r.Context()), r.URL.Query().Get("reason"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CorrectSale fixes a sale's quantity or method with an audit entry.
// PATCH /api/admin/sales/{id}
func (h *Handler) CorrectSale(w http.ResponseWriter, r *http.Request) {
	var req CorrectSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := sales.Correction{Quantity: req.Quantity}
	if req.PaymentMethod != nil {
		m := generic.PaymentMethod(*req.PaymentMethod)
		c.Method = &m
	}
	s, err := h.Sales.CorrectSale(r.Context(), generic.SaleID(chi.URLParam(r, "id")), c,
		actorFrom(r.Context()), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(s, h.loc()))
}

// DeleteSale removes a sale, restoring stock, with an audit entry.
// DELETE /api/admin/sales/{id}?reason=...
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	err := h.Sales.DeleteSale(r.Context(), generic.SaleID(chi.URLParam(r, "id")),
		actorFrom(r.Context()), r.URL.Query().Get("reason"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAudit returns audit entries, newest first.
// GET /api/admin/audit?kind=payment&entry_id=...&actor=...&limit=50
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := generic.AuditFilter{
		Kind:    generic.EntryKind(q.Get("kind")),
		EntryID: q.Get("entry_id"),
		Actor:   q.Get("actor"),
		Limit:   100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		f.Limit = n
	}
	entries, err := h.Store.QueryAudit(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toAuditEntryDTO(e, h.loc())
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the database answers.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// HELPERS
// =============================================================================

func memberID(r *http.Request) generic.MemberID {
	return generic.MemberID(chi.URLParam(r, "id"))
}

// decode reads a JSON body into dst. An empty body leaves dst zero.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func (h *Handler) optionalDate(w http.ResponseWriter, field, value string) (*generic.Date, bool) {
	if value == "" {
		return nil, true
	}
	d, err := generic.ParseDate(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+field+" format (use YYYY-MM-DD)", err)
		return nil, false
	}
	return &d, true
}

// period resolves ?start=&end= or ?period=name against today.
func (h *Handler) period(w http.ResponseWriter, r *http.Request) (generic.Period, bool) {
	q := r.URL.Query()
	if q.Get("start") != "" || q.Get("end") != "" {
		start, err := generic.ParseDate(q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start (use YYYY-MM-DD)", err)
			return generic.Period{}, false
		}
		end, err := generic.ParseDate(q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end (use YYYY-MM-DD)", err)
			return generic.Period{}, false
		}
		p, err := generic.NewPeriod(start, end)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period", err)
			return generic.Period{}, false
		}
		return p, true
	}
	p, err := generic.NamedPeriod(q.Get("period"), generic.Today(h.Clock))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return generic.Period{}, false
	}
	return p, true
}

// writeDomainError maps a service error to a status and logs server faults.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *generic.DuplicatePhoneError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   err.Error(),
			Code:    "duplicate_phone",
			Details: map[string]string{"existing_member_id": string(dup.ExistingMemberID)},
		})
	case generic.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, generic.ErrDailyPassExpired):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "daily_pass_expired"})
	case errors.Is(err, generic.ErrInsufficientStock):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "insufficient_stock"})
	case errors.Is(err, generic.ErrUnknownPlan):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "unknown_plan",
			Details: h.Catalog.Codes()})
	case generic.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid"})
	case generic.IsRetryable(err):
		h.log.Error("storage failure", "error", err, "request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Code: "persistence"})
	default:
		h.log.Error("request failed", "error", err, "request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
