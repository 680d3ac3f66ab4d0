/*
errors.go - Centralized error types for the membership engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Services return the structured types; callers match them with
  errors.Is against the sentinels or errors.As for details.

ERROR CATEGORIES:
  1. Membership errors - Duplicate phone, unknown member, unknown plan
  2. Attendance signals - Already checked in (soft), daily pass expired
  3. Ledger errors - Invalid periods, missing entries, stock shortages
  4. Store errors - PersistenceError wraps every storage-layer failure

USAGE:
  if errors.Is(err, generic.ErrAlreadyCheckedIn) {
      var dup *generic.AlreadyCheckedInError
      errors.As(err, &dup)
      fmt.Println("already in at", dup.ExistingAt)
  }

SEE ALSO:
  - store.go: Store methods return these errors
  - api/handlers.go: Maps error classes to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicatePhone is returned when a phone already belongs to a member.
	ErrDuplicatePhone = errors.New("phone already registered")

	// ErrMemberNotFound is returned when a member id does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrUnknownPlan is returned when a plan code is not in the catalog.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrAlreadyCheckedIn is returned when the member already has attendance
	// for the business day. It is informational, not a failure.
	ErrAlreadyCheckedIn = errors.New("already checked in today")

	// ErrDailyPassExpired is returned when a Daily plan member checks in
	// without a paid pass covering the day.
	ErrDailyPassExpired = errors.New("daily pass expired")

	// ErrInvalidPeriod is returned when a period is malformed (end not after start).
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrValidation is returned for malformed input (empty name, bad quantity).
	ErrValidation = errors.New("validation failed")

	// ErrEntryNotFound is returned when a payment or sale id does not exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrProductNotFound is returned when a product id does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrInsufficientStock is returned when a sale exceeds product stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPersistence marks storage-layer failures. Only this class is retryable.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicatePhoneError reports the member that already owns a phone.
type DuplicatePhoneError struct {
	Phone            string
	ExistingMemberID MemberID
}

func (e *DuplicatePhoneError) Error() string {
	if e.ExistingMemberID == "" {
		return fmt.Sprintf("phone %s already registered", e.Phone)
	}
	return fmt.Sprintf("phone %s already registered to member %s", e.Phone, e.ExistingMemberID)
}

func (e *DuplicatePhoneError) Unwrap() error { return ErrDuplicatePhone }

// MemberNotFoundError names the missing member.
type MemberNotFoundError struct {
	MemberID MemberID
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("member %s not found", e.MemberID)
}

func (e *MemberNotFoundError) Unwrap() error { return ErrMemberNotFound }

// UnknownPlanError names the plan that is not in the catalog.
type UnknownPlanError struct {
	Plan PlanCode
}

func (e *UnknownPlanError) Error() string {
	return fmt.Sprintf("unknown plan %q", e.Plan)
}

func (e *UnknownPlanError) Unwrap() error { return ErrUnknownPlan }

// AlreadyCheckedInError carries the attendance that already exists for the day.
type AlreadyCheckedInError struct {
	MemberID   MemberID
	Day        Date
	ExistingAt time.Time
}

func (e *AlreadyCheckedInError) Error() string {
	if e.ExistingAt.IsZero() {
		return fmt.Sprintf("member %s already checked in on %s", e.MemberID, e.Day)
	}
	return fmt.Sprintf("member %s already checked in on %s at %s",
		e.MemberID, e.Day, e.ExistingAt.Format("15:04"))
}

func (e *AlreadyCheckedInError) Unwrap() error { return ErrAlreadyCheckedIn }

// DailyPassExpiredError refuses a Daily plan check-in until a renewal is paid.
type DailyPassExpiredError struct {
	MemberID   MemberID
	Expiration *Date
}

func (e *DailyPassExpiredError) Error() string {
	if e.Expiration == nil {
		return fmt.Sprintf("member %s has no paid daily pass", e.MemberID)
	}
	return fmt.Sprintf("daily pass of member %s ended on %s", e.MemberID, e.Expiration)
}

func (e *DailyPassExpiredError) Unwrap() error { return ErrDailyPassExpired }

// EntryNotFoundError names a missing payment or sale.
type EntryNotFoundError struct {
	Kind EntryKind
	ID   string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *EntryNotFoundError) Unwrap() error { return ErrEntryNotFound }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID ProductID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PersistenceError wraps a storage failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Persistence wraps err unless it is nil or already a domain error.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsNotFound(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// WARNINGS - Signals that do not fail the operation
// =============================================================================

// PlanExpiredWarning accompanies a successful check-in by a member whose
// (non-Daily) plan has lapsed, so the desk can prompt for renewal.
type PlanExpiredWarning struct {
	MemberID    MemberID
	Plan        PlanCode
	Expiration  Date
	DaysOverdue int
}

func (w PlanExpiredWarning) String() string {
	return fmt.Sprintf("plan %s expired on %s (%d days ago)", w.Plan, w.Expiration, w.DaysOverdue)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicatePhone) ||
		errors.Is(err, ErrUnknownPlan) ||
		errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrDailyPassExpired) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsConflict returns true if the error reports a uniqueness collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicatePhone) || errors.Is(err, ErrAlreadyCheckedIn)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrProductNotFound)
}
