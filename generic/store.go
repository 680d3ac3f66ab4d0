/*
store.go - Persistence interfaces for members, ledgers and the audit log

PURPOSE:
  Defines the interface between the domain services and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  MemberStore:     Member records (phone is unique)
  PaymentStore:    Payment ledger
  AttendanceStore: Attendance ledger, unique per (member, business day)
  SalesStore:      Products and sales (collaborator ledger)
  AuditLog:        Append-only record of corrections and removals
  TxStore:         Transactional operations (atomic multi-table writes)

APPEND-ONLY CONTRACT:
  Normal posting only inserts. The Update/Delete methods on PaymentStore
  and SalesStore exist for audited corrections and for the member removal
  cascade; services never call them outside a WithTx that also appends an
  AuditEntry.

UNIQUENESS:
  InsertMember returns ErrDuplicatePhone when the phone is taken.
  InsertAttendance returns ErrAlreadyCheckedIn when (member, day) exists.
  Both are enforced by the store itself (unique index or map key), so a
  concurrent writer that slips past the service-level check still fails.

ATOMIC OPERATIONS:
  WithTx() ensures all-or-nothing semantics. Registering a member writes a
  Member and a Payment; either both are visible or neither is.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite (mattn/go-sqlite3) and PostgreSQL (pgx)
  - store/memory:   In-memory for tests and demos

SEE ALSO:
  - membership/manager.go: Uses WithTx for register/renew/remove
  - payments/ledger.go: Audited corrections
*/
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// STORE - Per-aggregate persistence interfaces
// =============================================================================

type MemberStore interface {
	// InsertMember persists a new member. Returns ErrDuplicatePhone on collision.
	InsertMember(ctx context.Context, m Member) error

	// UpdateMember overwrites a member. Returns ErrMemberNotFound or ErrDuplicatePhone.
	UpdateMember(ctx context.Context, m Member) error

	// GetMember returns ErrMemberNotFound when the id is unknown.
	GetMember(ctx context.Context, id MemberID) (Member, error)

	// FindMemberByPhone returns (member, true) when the phone is registered.
	FindMemberByPhone(ctx context.Context, phone string) (Member, bool, error)

	// ListMembers returns all members ordered by name.
	ListMembers(ctx context.Context) ([]Member, error)

	// DeleteMember removes only the member row. Dependents must be handled first.
	DeleteMember(ctx context.Context, id MemberID) error
}

type PaymentStore interface {
	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id PaymentID) error

	// PaymentsByMember returns a member's payments, newest first.
	PaymentsByMember(ctx context.Context, memberID MemberID) ([]Payment, error)

	// PaymentsInRange returns payments with PaidAt in [from, to), oldest first.
	PaymentsInRange(ctx context.Context, from, to time.Time) ([]Payment, error)

	DeletePaymentsByMember(ctx context.Context, memberID MemberID) (int, error)
}

type AttendanceStore interface {
	// InsertAttendance returns ErrAlreadyCheckedIn if (MemberID, Day) exists.
	InsertAttendance(ctx context.Context, a Attendance) error

	// AttendanceOnDay returns the member's attendance for day, if any.
	AttendanceOnDay(ctx context.Context, memberID MemberID, day Date) (Attendance, bool, error)

	// AttendanceByMember returns a member's attendance, newest first.
	AttendanceByMember(ctx context.Context, memberID MemberID) ([]Attendance, error)

	// AttendanceInPeriod returns attendance whose Day is within p, oldest first.
	AttendanceInPeriod(ctx context.Context, p Period) ([]Attendance, error)

	DeleteAttendanceByMember(ctx context.Context, memberID MemberID) (int, error)
}

type SalesStore interface {
	InsertProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	ListProducts(ctx context.Context) ([]Product, error)

	InsertSale(ctx context.Context, s Sale) error
	GetSale(ctx context.Context, id SaleID) (Sale, error)
	UpdateSale(ctx context.Context, s Sale) error
	DeleteSale(ctx context.Context, id SaleID) error

	// SalesInRange returns sales with SoldAt in [from, to), oldest first.
	SalesInRange(ctx context.Context, from, to time.Time) ([]SaleRow, error)

	// SalesByMember returns a member's sales, newest first.
	SalesByMember(ctx context.Context, memberID MemberID) ([]SaleRow, error)

	// DetachSalesFromMember sets MemberID to nil on all of a member's sales.
	DetachSalesFromMember(ctx context.Context, memberID MemberID) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	MemberStore
	PaymentStore
	AttendanceStore
	SalesStore
	AuditLog
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// fn must only use the Store it is given.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Separate from ledgers, tracks who changed what when
// =============================================================================

// EntryKind names the ledger an audited entry belongs to.
type EntryKind string

const (
	EntryPayment EntryKind = "payment"
	EntrySale    EntryKind = "sale"
	EntryMember  EntryKind = "member"
)

type AuditAction string

const (
	AuditPaymentCorrected AuditAction = "payment_corrected"
	AuditPaymentDeleted   AuditAction = "payment_deleted"
	AuditSaleCorrected    AuditAction = "sale_corrected"
	AuditSaleDeleted      AuditAction = "sale_deleted"
	AuditMemberRemoved    AuditAction = "member_removed"
)

// AuditEntry records one correction with the values before and after.
type AuditEntry struct {
	ID         string
	RecordedAt time.Time
	Actor      string
	Action     AuditAction
	Kind       EntryKind
	EntryID    string
	Reason     string
	Before     json.RawMessage
	After      json.RawMessage
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows QueryAudit. Zero fields match everything.
type AuditFilter struct {
	Kind    EntryKind
	EntryID string
	Actor   string
	Actions []AuditAction
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.EntryID != "" && e.EntryID != f.EntryID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.RecordedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.RecordedAt.Before(*f.To) {
		return false
	}
	return true
}

// NewAuditEntry stamps an entry with a fresh id and the clock's time and
// encodes before/after as JSON. A nil value leaves its side empty.
func NewAuditEntry(clock Clock, actor string, action AuditAction, kind EntryKind, entryID, reason string, before, after any) (AuditEntry, error) {
	e := AuditEntry{
		ID:         NewID(),
		RecordedAt: clock.Now(),
		Actor:      actor,
		Action:     action,
		Kind:       kind,
		EntryID:    entryID,
		Reason:     reason,
	}
	var err error
	if before != nil {
		if e.Before, err = json.Marshal(before); err != nil {
			return AuditEntry{}, fmt.Errorf("encode audit before: %w", err)
		}
	}
	if after != nil {
		if e.After, err = json.Marshal(after); err != nil {
			return AuditEntry{}, fmt.Errorf("encode audit after: %w", err)
		}
	}
	return e, nil
}
