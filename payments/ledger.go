/*
Package payments implements the payment ledger.

PURPOSE:
  Payments record money received for a plan period [Period.Start, Period.End).
  They are posted by membership operations inside the same transaction as the
  member mutation (see Post) and are never edited by normal flows.

CORRECTIONS:
  An administrator may fix a mistaken entry through Correct or Delete. Both
  run in one transaction with an audit entry holding the values before and
  after, so the append-only history stays explainable.

SEE ALSO:
  - membership/manager.go: Posts payments on register/renew/change plan
  - finance/engine.go: Reads payments by range
*/
package payments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/telemetry"
)

// =============================================================================
// POSTING
// =============================================================================

// Validate checks the ledger invariants of a new or corrected payment.
func Validate(p generic.Payment) error {
	if p.MemberID == "" {
		return &generic.ValidationError{Field: "member_id", Message: "required"}
	}
	if p.Amount.IsNegative() {
		return &generic.ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if strings.TrimSpace(string(p.Method)) == "" {
		return &generic.ValidationError{Field: "payment_method", Message: "required"}
	}
	if !p.Period.End.After(p.Period.Start) {
		return generic.ErrInvalidPeriod
	}
	return nil
}

// Post validates p, assigns an id when missing, and appends it using the
// caller's transaction.
func Post(ctx context.Context, tx generic.Store, p generic.Payment) (generic.Payment, error) {
	if p.ID == "" {
		p.ID = generic.PaymentID(generic.NewID())
	}
	if err := Validate(p); err != nil {
		return generic.Payment{}, err
	}
	if err := tx.InsertPayment(ctx, p); err != nil {
		return generic.Payment{}, err
	}
	return p, nil
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger serves payment reads and audited corrections.
type Ledger struct {
	store  generic.TxStore
	clock  generic.Clock
	log    *slog.Logger
	tracer trace.Tracer

	corrections metric.Int64Counter
}

func NewLedger(store generic.TxStore, clock generic.Clock, logger *slog.Logger) *Ledger {
	corrections, _ := otel.Meter("gymdesk/payments").Int64Counter("gymdesk.payments.corrections",
		metric.WithDescription("Audited payment corrections and deletions"))
	return &Ledger{
		store:       store,
		clock:       clock,
		log:         logger,
		tracer:      otel.Tracer("gymdesk/payments"),
		corrections: corrections,
	}
}

// History returns a member's payments, newest first.
func (l *Ledger) History(ctx context.Context, memberID generic.MemberID) ([]generic.Payment, error) {
	if _, err := l.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return l.store.PaymentsByMember(ctx, memberID)
}

// InRange returns payments whose paid_at falls inside the business-zone period.
func (l *Ledger) InRange(ctx context.Context, p generic.Period) ([]generic.Payment, error) {
	from, to := p.Bounds(l.clock.Location())
	return l.store.PaymentsInRange(ctx, from, to)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// Correction lists the fields to overwrite. Nil fields keep their value.
type Correction struct {
	Amount *generic.Amount
	Method *generic.PaymentMethod
	Period *generic.Period
	PaidAt *time.Time
}

func (c Correction) empty() bool {
	return c.Amount == nil && c.Method == nil && c.Period == nil && c.PaidAt == nil
}

// Correct overwrites fields of a posted payment and records the change.
func (l *Ledger) Correct(ctx context.Context, id generic.PaymentID, c Correction, actor, reason string) (generic.Payment, error) {
	ctx, span := l.tracer.Start(ctx, "payments.correct",
		trace.WithAttributes(attribute.String("payment.id", string(id)), attribute.String("actor", actor)))
	var err error
	defer func() { telemetry.End(span, err) }()

	if err = requireActor(actor, reason); err != nil {
		return generic.Payment{}, err
	}
	if c.empty() {
		err = &generic.ValidationError{Field: "correction", Message: "nothing to change"}
		return generic.Payment{}, err
	}

	var corrected generic.Payment
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		before, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}

		after := before
		if c.Amount != nil {
			after.Amount = *c.Amount
		}
		if c.Method != nil {
			after.Method = *c.Method
		}
		if c.Period != nil {
			after.Period = *c.Period
		}
		if c.PaidAt != nil {
			after.PaidAt = *c.PaidAt
		}
		if err := Validate(after); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, after); err != nil {
			return err
		}

		entry, err := generic.NewAuditEntry(l.clock, actor, generic.AuditPaymentCorrected, generic.EntryPayment,
			string(id), reason, record(before), record(after))
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		corrected = after
		return nil
	})
	if err != nil {
		return generic.Payment{}, err
	}

	l.corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(generic.AuditPaymentCorrected))))
	l.log.Info("payment corrected", "payment_id", id, "member_id", corrected.MemberID, "actor", actor,
		"amount", corrected.Amount.String())
	return corrected, nil
}

// Delete removes a posted payment and records it in the audit log.
func (l *Ledger) Delete(ctx context.Context, id generic.PaymentID, actor, reason string) error {
	ctx, span := l.tracer.Start(ctx, "payments.delete",
		trace.WithAttributes(attribute.String("payment.id", string(id)), attribute.String("actor", actor)))
	var err error
	defer func() { telemetry.End(span, err) }()

	if err = requireActor(actor, reason); err != nil {
		return err
	}

	var removed generic.Payment
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		before, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, id); err != nil {
			return err
		}
		entry, err := generic.NewAuditEntry(l.clock, actor, generic.AuditPaymentDeleted, generic.EntryPayment,
			string(id), reason, record(before), nil)
		if err != nil {
			return err
		}
		removed = before
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return err
	}

	l.corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(generic.AuditPaymentDeleted))))
	l.log.Info("payment deleted", "payment_id", id, "member_id", removed.MemberID, "actor", actor,
		"amount", removed.Amount.String())
	return nil
}

func requireActor(actor, reason string) error {
	if strings.TrimSpace(actor) == "" {
		return &generic.ValidationError{Field: "actor", Message: "required"}
	}
	if strings.TrimSpace(reason) == "" {
		return &generic.ValidationError{Field: "reason", Message: "required"}
	}
	return nil
}

// paymentRecord is the audit-log shape of a payment.
type paymentRecord struct {
	ID          generic.PaymentID     `json:"id"`
	MemberID    generic.MemberID      `json:"member_id"`
	Amount      string                `json:"amount"`
	Method      generic.PaymentMethod `json:"payment_method"`
	Plan        generic.PlanCode      `json:"plan"`
	PeriodStart generic.Date          `json:"period_start"`
	PeriodEnd   generic.Date          `json:"period_end"`
	PaidAt      time.Time             `json:"paid_at"`
}

func record(p generic.Payment) paymentRecord {
	return paymentRecord{
		ID:          p.ID,
		MemberID:    p.MemberID,
		Amount:      p.Amount.String(),
		Method:      p.Method,
		Plan:        p.Plan,
		PeriodStart: p.Period.Start,
		PeriodEnd:   p.Period.End,
		PaidAt:      p.PaidAt,
	}
}
