/*
handlers_test.go - HTTP tests for the front-desk API

Tests for:
- Member registration, duplicates and validation errors
- Check-in status codes (new visit, repeat visit, expired daily pass)
- Admin guard on removals and ledger corrections
- Shop sales and stock errors
- Finance report period parsing
- Rate limiting and health probes
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/plans"
	"github.com/warp/gymdesk/store/memory"
	"github.com/warp/gymdesk/telemetry"
)

const adminKey = "front-desk-admin-key"

var bogota, _ = time.LoadLocation(generic.DefaultTimeZone)

type testServer struct {
	handler *Handler
	router  http.Handler
	clock   *generic.FixedClock
	store   *memory.Memory
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := memory.New()
	clock := generic.FixedClockAt(generic.NewDate(2024, time.March, 15), 10, bogota)
	logger := telemetry.Discard()

	h := NewHandler(NewServices(store, plans.DefaultCatalog(), clock, logger), logger)
	if opts.AdminKeyHash == "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
		require.NoError(t, err)
		opts.AdminKeyHash = string(hash)
	}
	return &testServer{handler: h, router: NewRouter(h, opts), clock: clock, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, body, "X-Admin-Key", adminKey, "X-Admin-Actor", "carolina")
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func (s *testServer) register(t *testing.T, name, phone, plan string) MemberDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/members", RegisterMemberRequest{
		Name: name, Phone: phone, Plan: plan, PaymentMethod: "Efectivo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[MemberDTO](t, rec)
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestRegisterMember(t *testing.T) {
	s := newTestServer(t, Options{})

	// GIVEN a new member on Monthly
	ana := s.register(t, "Ana", "3001234567", "monthly")

	// THEN the plan runs 30 days and the member is active
	assert.Equal(t, "MONTHLY", ana.Plan)
	assert.Equal(t, "2024-03-15", ana.JoinDate)
	require.NotNil(t, ana.PlanExpiration)
	assert.Equal(t, "2024-04-14", *ana.PlanExpiration)
	assert.Equal(t, "70000.00", ana.PlanPrice)
	assert.Equal(t, "ACTIVE", ana.Status)

	// AND the first payment is in the history
	rec := s.do(t, http.MethodGet, "/api/members/"+ana.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]PaymentDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "2024-03-15", history[0].PeriodStart)
	assert.Equal(t, "2024-04-14", history[0].PeriodEnd)

	rec = s.do(t, http.MethodGet, "/api/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]MemberDTO](t, rec), 1)
}

func TestRegisterMember_DuplicatePhone(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")

	// WHEN someone registers with the same phone
	rec := s.do(t, http.MethodPost, "/api/members", RegisterMemberRequest{
		Name: "Other", Phone: "3001234567", Plan: "Daily", PaymentMethod: "Nequi",
	})

	// THEN 409 names the existing member
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "duplicate_phone", resp.Code)
	assert.Equal(t, map[string]any{"existing_member_id": ana.ID}, resp.Details)
}

func TestRegisterMember_BadRequests(t *testing.T) {
	s := newTestServer(t, Options{})

	cases := map[string]struct {
		body any
		code string
	}{
		"unknown plan":   {RegisterMemberRequest{Name: "A", Phone: "1", Plan: "Platinum", PaymentMethod: "Efectivo"}, "unknown_plan"},
		"missing name":   {RegisterMemberRequest{Phone: "1", Plan: "Monthly", PaymentMethod: "Efectivo"}, "invalid"},
		"missing method": {RegisterMemberRequest{Name: "A", Phone: "1", Plan: "Monthly"}, "invalid"},
		"bad start date": {RegisterMemberRequest{Name: "A", Phone: "1", Plan: "Monthly", PaymentMethod: "Efectivo", StartDate: "15/03/2024"}, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/members", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/members", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMember_NotFound(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, path := range []string{"/api/members/ghost", "/api/members/ghost/payments"} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := s.do(t, http.MethodPost, "/api/members/ghost/renew", RenewRequest{PaymentMethod: "Efectivo"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenewAndChangePlan(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")

	// WHEN Ana renews from an explicit date
	rec := s.do(t, http.MethodPost, "/api/members/"+ana.ID+"/renew",
		RenewRequest{PaymentMethod: "Nequi", StartDate: "2024-03-20"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-04-19", *decodeBody[MemberDTO](t, rec).PlanExpiration)

	// AND then moves to Guided
	rec = s.do(t, http.MethodPost, "/api/members/"+ana.ID+"/plan",
		ChangePlanRequest{Plan: "guided", PaymentMethod: "Tarjeta"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	changed := decodeBody[MemberDTO](t, rec)
	assert.Equal(t, "GUIDED", changed.Plan)
	assert.Equal(t, "130000.00", changed.PlanPrice)

	rec = s.do(t, http.MethodGet, "/api/members/"+ana.ID+"/payments", nil)
	assert.Len(t, decodeBody[[]PaymentDTO](t, rec), 3)
}

func TestUpdateMember(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")
	s.register(t, "Bob", "3009999999", "Monthly")

	name := "Ana María"
	rec := s.do(t, http.MethodPatch, "/api/members/"+ana.ID, UpdateMemberRequest{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana María", decodeBody[MemberDTO](t, rec).Name)

	phone := "3009999999"
	rec = s.do(t, http.MethodPatch, "/api/members/"+ana.ID, UpdateMemberRequest{Phone: &phone})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// CHECK-INS
// =============================================================================

func TestCheckIn_StatusCodes(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")

	// First visit of the day is created
	rec := s.do(t, http.MethodPost, "/api/members/"+ana.ID+"/checkins", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[CheckInResponse](t, rec)
	assert.False(t, first.AlreadyCheckedIn)
	assert.Equal(t, "2024-03-15", first.Attendance.Day)

	// A second visit is reported, not recorded
	rec = s.do(t, http.MethodPost, "/api/members/"+ana.ID+"/checkins", CheckInRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[CheckInResponse](t, rec)
	assert.True(t, second.AlreadyCheckedIn)

	rec = s.do(t, http.MethodGet, "/api/members/"+ana.ID+"/attendance", nil)
	assert.Len(t, decodeBody[[]AttendanceDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/attendance/counts", nil)
	assert.JSONEq(t, `{"today":1,"month":1}`, rec.Body.String())
}

func TestCheckIn_ExpiredPlanWarns(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := s.do(t, http.MethodPost, "/api/members", RegisterMemberRequest{
		Name: "Bob", Phone: "300", Plan: "Biweekly", PaymentMethod: "Efectivo", StartDate: "2024-02-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	bob := decodeBody[MemberDTO](t, rec)
	assert.Equal(t, "EXPIRED", bob.Status)

	rec = s.do(t, http.MethodPost, "/api/members/"+bob.ID+"/checkins", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[CheckInResponse](t, rec)
	require.NotNil(t, resp.Warning)
	assert.Equal(t, "2024-03-06", resp.Warning.Expiration)
	assert.Equal(t, 9, resp.Warning.DaysOverdue)
}

func TestCheckIn_DailyPassExpired(t *testing.T) {
	s := newTestServer(t, Options{})
	carl := s.register(t, "Carl", "301", "Daily")

	// GIVEN the next day, which is the pass's expiration date
	s.clock.Set(s.clock.Now().Add(24 * time.Hour))

	// THEN the pass still admits
	rec := s.do(t, http.MethodPost, "/api/members/"+carl.ID+"/checkins", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// AND the day after it no longer does
	s.clock.Set(s.clock.Now().Add(24 * time.Hour))
	rec = s.do(t, http.MethodPost, "/api/members/"+carl.ID+"/checkins", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "daily_pass_expired", decodeBody[ErrorResponse](t, rec).Code)
}

func TestAttendanceCalendar(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")
	s.do(t, http.MethodPost, "/api/members/"+ana.ID+"/checkins", nil)

	rec := s.do(t, http.MethodGet, "/api/attendance/calendar?year=2024&month=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feb []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feb))
	assert.Len(t, feb, 29)

	rec = s.do(t, http.MethodGet, "/api/attendance/calendar?month=13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/attendance/calendar?year=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAdmin_RequiresKey(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")

	rec := s.do(t, http.MethodDelete, "/api/members/"+ana.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/members/"+ana.ID, nil, "X-Admin-Key", "wrong-key-wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/admin/audit", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Member still there
	rec = s.do(t, http.MethodGet, "/api/members/"+ana.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_DisabledWithoutHash(t *testing.T) {
	store := memory.New()
	clock := generic.FixedClockAt(generic.NewDate(2024, time.March, 15), 10, bogota)
	h := NewHandler(NewServices(store, plans.DefaultCatalog(), clock, telemetry.Discard()), telemetry.Discard())
	router := NewRouter(h, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
	req.Header.Set("X-Admin-Key", adminKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_RemoveMember(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")
	s.do(t, http.MethodPost, "/api/members/"+ana.ID+"/checkins", nil)

	rec := s.admin(t, http.MethodDelete, "/api/members/"+ana.ID+"?reason=duplicate+record", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"member_id":"`+ana.ID+`","payments_deleted":1,"attendance_deleted":1,"sales_detached":0}`,
		rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/members/"+ana.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.admin(t, http.MethodGet, "/api/admin/audit?kind=member", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]AuditEntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "carolina", entries[0].Actor)
	assert.Equal(t, "member_removed", entries[0].Action)
}

func TestAdmin_CorrectAndDeletePayment(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")
	history := decodeBody[[]PaymentDTO](t, s.do(t, http.MethodGet, "/api/members/"+ana.ID+"/payments", nil))
	require.Len(t, history, 1)
	id := history[0].ID

	// WHEN the cashier's typo is corrected
	amount := "65000"
	end := "2024-04-15"
	rec := s.admin(t, http.MethodPatch, "/api/admin/payments/"+id, CorrectPaymentRequest{
		Amount: &amount, PeriodEnd: &end, Reason: "promo price",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	corrected := decodeBody[PaymentDTO](t, rec)
	assert.Equal(t, "65000.00", corrected.Amount)
	assert.Equal(t, "2024-03-15", corrected.PeriodStart)
	assert.Equal(t, "2024-04-15", corrected.PeriodEnd)

	// THEN a correction without a reason is refused
	rec = s.admin(t, http.MethodPatch, "/api/admin/payments/"+id, CorrectPaymentRequest{Amount: &amount})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// AND a negative amount is refused
	negative := "-1"
	rec = s.admin(t, http.MethodPatch, "/api/admin/payments/"+id, CorrectPaymentRequest{Amount: &negative, Reason: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.admin(t, http.MethodDelete, "/api/admin/payments/"+id+"?reason=refund", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.admin(t, http.MethodDelete, "/api/admin/payments/"+id+"?reason=refund", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.admin(t, http.MethodGet, "/api/admin/audit?kind=payment&entry_id="+id, nil)
	entries := decodeBody[[]AuditEntryDTO](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "payment_deleted", entries[0].Action)
	assert.Equal(t, "payment_corrected", entries[1].Action)
}

// =============================================================================
// SHOP
// =============================================================================

func TestSales(t *testing.T) {
	s := newTestServer(t, Options{})
	ana := s.register(t, "Ana", "3001234567", "Monthly")

	rec := s.do(t, http.MethodPost, "/api/products", CreateProductRequest{
		Name: "Batido", Category: "Suplementos", Price: "8000", Stock: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batido := decodeBody[ProductDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/api/products", CreateProductRequest{Name: "Agua", Price: "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN Ana buys two
	rec = s.do(t, http.MethodPost, "/api/sales", RecordSaleRequest{
		ProductID: batido.ID, MemberID: &ana.ID, Quantity: 2, PaymentMethod: "Nequi",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody[SaleDTO](t, rec)
	assert.Equal(t, "16000.00", sale.Total)
	assert.Equal(t, "Batido", sale.ProductName)

	// THEN only one is left
	rec = s.do(t, http.MethodPost, "/api/sales", RecordSaleRequest{
		ProductID: batido.ID, Quantity: 2, PaymentMethod: "Efectivo",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_stock", decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/products/"+batido.ID+"/restock", RestockRequest{Units: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, decodeBody[ProductDTO](t, rec).Stock)

	rec = s.do(t, http.MethodGet, "/api/members/"+ana.ID+"/sales", nil)
	assert.Len(t, decodeBody[[]SaleDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/sales?period=today", nil)
	assert.Len(t, decodeBody[[]SaleDTO](t, rec), 1)

	// Admin correction moves stock back
	one := 1
	rec = s.admin(t, http.MethodPatch, "/api/admin/sales/"+sale.ID, CorrectSaleRequest{Quantity: &one, Reason: "miscount"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "8000.00", decodeBody[SaleDTO](t, rec).Total)

	rec = s.admin(t, http.MethodDelete, "/api/admin/sales/"+sale.ID+"?reason=returned", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	products := decodeBody[[]ProductDTO](t, s.do(t, http.MethodGet, "/api/products", nil))
	require.Len(t, products, 1)
	assert.Equal(t, 8, products[0].Stock)
}

// =============================================================================
// FINANCE
// =============================================================================

func TestFinancialReport(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ana", "3001234567", "Monthly")
	s.register(t, "Bob", "3009999999", "Daily")

	rec := s.do(t, http.MethodGet, "/api/finance/report?period=month", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[ReportDTO](t, rec)
	assert.Equal(t, "2024-03-01", report.PeriodStart)
	assert.Equal(t, "2024-04-01", report.PeriodEnd)
	assert.Equal(t, "75000.00", report.Revenue.Total)
	assert.Equal(t, 2, report.PaymentCount)

	rec = s.do(t, http.MethodGet, "/api/finance/report?start=2024-01-01&end=2024-02-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.00", decodeBody[ReportDTO](t, rec).Revenue.Total)

	for _, q := range []string{"?period=decade", "?start=2024-02-01&end=2024-01-01", "?start=yesterday&end=2024-01-01"} {
		rec = s.do(t, http.MethodGet, "/api/finance/report"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestDashboardAndHistory(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ana", "3001234567", "Monthly")

	rec := s.do(t, http.MethodGet, "/api/finance/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decodeBody[DashboardDTO](t, rec)
	assert.Equal(t, "2024-03-15", d.Today)
	assert.Equal(t, "70000.00", d.Day.Total)
	assert.Equal(t, 1, d.KPIs.Members)

	rec = s.do(t, http.MethodGet, "/api/finance/history?count=3&size=week", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	series := decodeBody[[]PeriodSummaryDTO](t, rec)
	require.Len(t, series, 3)
	assert.Equal(t, "70000.00", series[2].Total)

	rec = s.do(t, http.MethodGet, "/api/finance/history?count=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPlans(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodGet, "/api/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]PlanDTO](t, rec)
	require.Len(t, all, 6)
	assert.Equal(t, "DAILY", all[0].Code)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RequestsPerSecond: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Another client has its own budget
	rec = s.do(t, http.MethodGet, "/healthz", nil, "X-Real-IP", "203.0.113.9")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, Options{MaxBodyBytes: 64})

	rec := s.do(t, http.MethodPost, "/api/members", RegisterMemberRequest{
		Name: string(bytes.Repeat([]byte("a"), 200)), Phone: "1", Plan: "Monthly", PaymentMethod: "Efectivo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", nil).Code)
	assert.Equal(t, "nosniff", s.do(t, http.MethodGet, "/healthz", nil).Header().Get("X-Content-Type-Options"))
}
