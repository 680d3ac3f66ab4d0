/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs and error reports
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     Structured request logging (slog)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Headers:    nosniff, frame denial, referrer policy
  6. CORS:       Cross-origin requests for the front-desk UI
  7. RateLimit:  Token bucket per client address
  8. Body limit: Requests larger than MaxBodyBytes are cut off

ROUTE GROUPS:
  /healthz, /readyz     Liveness and database readiness
  /api/members/*        Registration, renewals, check-ins, histories
  /api/attendance/*     Calendar and counters
  /api/plans            Plan catalog
  /api/products/*       Shop catalog and stock
  /api/sales            Shop sales
  /api/finance/*        Reports, dashboard, trends
  /api/scenarios/*      Demo data sets
  /api/admin/*          Corrections, deletions, audit trail (X-Admin-Key)

SECURITY NOTE:
  Member removal, ledger corrections and scenario loading sit behind the
  admin key. Everything else is open to the front desk.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Admin guard and request logging
  - cli/serve.go: Server startup
*/
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configure the router.
type Options struct {
	AllowedOrigins    []string
	MaxBodyBytes      int64
	RequestsPerSecond float64
	Burst             int
	AdminKeyHash      string
	Logger            *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = h.log
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Key", "X-Admin-Actor"},
		AllowCredentials: true,
	}))
	if opts.RequestsPerSecond > 0 {
		r.Use(rateLimitMiddleware(newRateLimiter(opts.RequestsPerSecond, opts.Burst)))
	}
	if opts.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(opts.MaxBodyBytes))
	}

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	admin := adminMiddleware(opts.AdminKeyHash)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.RegisterMember)
			r.Get("/expiring", h.ListExpiring)
			r.Get("/{id}", h.GetMember)
			r.Patch("/{id}", h.UpdateMember)
			r.With(admin).Delete("/{id}", h.RemoveMember)
			r.Post("/{id}/renew", h.RenewMember)
			r.Post("/{id}/plan", h.ChangePlan)
			r.Post("/{id}/checkins", h.CheckIn)
			r.Get("/{id}/payments", h.MemberPayments)
			r.Get("/{id}/attendance", h.MemberAttendance)
			r.Get("/{id}/sales", h.MemberSales)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Get("/calendar", h.AttendanceCalendar)
			r.Get("/counts", h.AttendanceCounts)
		})

		r.Get("/plans", h.ListPlans)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Post("/{id}/restock", h.RestockProduct)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.RecordSale)
		})

		r.Route("/finance", func(r chi.Router) {
			r.Get("/report", h.FinancialReport)
			r.Get("/dashboard", h.Dashboard)
			r.Get("/history", h.History)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(admin).Post("/load", h.LoadScenario)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(admin)
			r.Patch("/payments/{id}", h.CorrectPayment)
			r.Delete("/payments/{id}", h.DeletePayment)
			r.Patch("/sales/{id}", h.CorrectSale)
			r.Delete("/sales/{id}", h.DeleteSale)
			r.Get("/audit", h.ListAudit)
		})
	})

	return r
}
