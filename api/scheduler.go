/*
scheduler.go - Periodic expiration sweep

PURPOSE:
  Periodically reports members whose plans have lapsed or are about to, so
  the front desk sees them in the logs and the gauges without opening the
  dashboard. The sweep only reads; statuses are always derived on demand.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on Start
  - Publishes gymdesk.members.expired and gymdesk.members.expiring_soon

USAGE:
  scheduler := NewExpirationScheduler(members, logger)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - membership/view.go: Status derivation
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/warp/gymdesk/membership"
)

// memberLister is the part of the membership manager the sweep reads.
type memberLister interface {
	List(ctx context.Context) ([]membership.View, error)
}

// Sweep is the outcome of one pass.
type Sweep struct {
	Expired      int
	ExpiringSoon int
}

// ExpirationScheduler periodically counts expired and expiring members.
type ExpirationScheduler struct {
	Members       memberLister
	CheckInterval time.Duration

	log      *slog.Logger
	expired  metric.Int64Gauge
	expiring metric.Int64Gauge

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	last   Sweep
}

// NewExpirationScheduler creates a scheduler that sweeps hourly.
func NewExpirationScheduler(members memberLister, logger *slog.Logger) *ExpirationScheduler {
	meter := otel.Meter("gymdesk/api")
	expired, _ := meter.Int64Gauge("gymdesk.members.expired",
		metric.WithDescription("Members whose plan has lapsed"))
	expiring, _ := meter.Int64Gauge("gymdesk.members.expiring_soon",
		metric.WithDescription("Members whose plan ends within the warning window"))
	return &ExpirationScheduler{
		Members:       members,
		CheckInterval: time.Hour,
		log:           logger,
		expired:       expired,
		expiring:      expiring,
	}
}

// Start begins the scheduler. It stops when ctx is cancelled or Stop is called.
func (s *ExpirationScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("expiration scheduler started", "interval", s.CheckInterval)
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *ExpirationScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
		s.log.Info("expiration scheduler stopped")
	}
}

// Last returns the result of the most recent sweep.
func (s *ExpirationScheduler) Last() Sweep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *ExpirationScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.CheckInterval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweepAndLog(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *ExpirationScheduler) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("expiration sweep failed", "error", err)
	}
}

// Sweep runs one pass now.
func (s *ExpirationScheduler) Sweep(ctx context.Context) (Sweep, error) {
	views, err := s.Members.List(ctx)
	if err != nil {
		return Sweep{}, err
	}

	var out Sweep
	for _, v := range views {
		switch v.Status {
		case membership.StatusExpired:
			out.Expired++
		case membership.StatusExpiringSoon:
			out.ExpiringSoon++
			s.log.Info("plan expiring soon",
				"member_id", v.ID, "name", v.Name, "plan", v.Plan, "days_remaining", *v.DaysRemaining)
		}
	}
	s.expired.Record(ctx, int64(out.Expired))
	s.expiring.Record(ctx, int64(out.ExpiringSoon))

	s.mu.Lock()
	s.last = out
	s.mu.Unlock()

	s.log.Info("expiration sweep", "expired", out.Expired, "expiring_soon", out.ExpiringSoon)
	return out, nil
}
