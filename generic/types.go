/*
Package generic provides the core types shared by every gymdesk component.

PURPOSE:
  This package holds the vocabulary of the membership and ledger engine:
  money amounts, identifiers, member records and the three ledgers that
  hang off a member (payments, attendance, sales). Domain packages
  (membership, attendance, payments, sales, finance) build their rules on
  top of these types; storage packages persist them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal money value in the gym's single currency
  - Member: Identity, current plan and the price snapshot of the last renewal
  - Payment: Immutable ledger entry covering a plan period [start, end)
  - Attendance: One check-in, keyed by the business day it happened on
  - Product / Sale: Retail collaborator entities consumed by reporting

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Type Safety: Distinct ID types prevent mixing member and payment IDs
  3. Snapshots: Payments and sales copy the price they were charged

USAGE:
  price := generic.NewAmountFromInt(70000)
  payment := generic.Payment{
      MemberID: member.ID,
      Amount:   price,
      Plan:     member.Plan,
      Period:   generic.Period{Start: start, End: expiration},
  }

SEE ALSO:
  - time.go: Date and Clock
  - period.go: Half-open reporting periods
  - store.go: Persistence interfaces
*/
package generic

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Decimal money value
// =============================================================================

// Amount is a money value. The gym operates in a single currency, so the
// currency is carried for display only and never converted.
type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const CurrencyCOP Currency = "COP"

// MoneyPlaces is the number of decimal places applied at reporting boundaries.
const MoneyPlaces = 2

func NewAmount(value decimal.Decimal) Amount {
	return Amount{Value: value, Currency: CurrencyCOP}
}

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: CurrencyCOP}
}

// ParseAmount parses a decimal string such as "70000" or "12.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, err
	}
	return NewAmount(d), nil
}

func ZeroAmount() Amount { return NewAmount(decimal.Zero) }

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.currency()} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.currency()} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.currency()} }
func (a Amount) MulInt(n int) Amount          { return a.Mul(decimal.NewFromInt(int64(n))) }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }

// Rounded applies round-half-up to two places. decimal.Round rounds half away
// from zero, which is half-up for the non-negative values money takes here.
func (a Amount) Rounded() Amount {
	return Amount{Value: a.Value.Round(MoneyPlaces), Currency: a.currency()}
}

// String renders the value with exactly two decimals.
func (a Amount) String() string { return a.Value.StringFixed(MoneyPlaces) }

func (a Amount) currency() Currency {
	if a.Currency == "" {
		return CurrencyCOP
	}
	return a.Currency
}

// SumAmounts adds values without intermediate rounding.
func SumAmounts(values ...Amount) Amount {
	total := ZeroAmount()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type PaymentID string
type AttendanceID string
type ProductID string
type SaleID string

// PlanCode names a catalog plan. The catalog itself lives in package plans;
// storage and ledgers only carry the code.
type PlanCode string

// PaymentMethod is free text entered at the front desk ("Efectivo", "Nequi").
type PaymentMethod string

// NewID returns a random identifier suitable for any entity.
func NewID() string { return uuid.NewString() }

// =============================================================================
// MEMBER
// =============================================================================

// Member is a person with an active or lapsed membership.
// Billing status is never stored; it is derived from PlanExpiration.
type Member struct {
	ID             MemberID
	Name           string
	Phone          string
	Plan           PlanCode
	JoinDate       Date
	PlanExpiration *Date
	PlanPrice      Amount // price charged at the last registration/renewal
	CreatedAt      time.Time
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// Payment records money received for a plan period [Period.Start, Period.End).
type Payment struct {
	ID       PaymentID
	MemberID MemberID
	Amount   Amount
	Method   PaymentMethod
	Plan     PlanCode
	Period   Period
	PaidAt   time.Time
}

// Attendance is a single gym visit. Day is the business-zone calendar day
// of CheckedInAt and is unique per member.
type Attendance struct {
	ID          AttendanceID
	MemberID    MemberID
	CheckedInAt time.Time
	Day         Date
}

// Product is a retail item sold at the front desk.
type Product struct {
	ID        ProductID
	Name      string
	Category  string
	Price     Amount
	Stock     int
	CreatedAt time.Time
}

// Sale is a retail transaction. MemberID is nil for anonymous sales and for
// sales whose member was removed.
type Sale struct {
	ID        SaleID
	ProductID ProductID
	MemberID  *MemberID
	Quantity  int
	UnitPrice Amount
	Total     Amount
	Method    PaymentMethod
	SoldAt    time.Time
}

// SaleRow is a sale joined with its product's name and category, the shape
// reporting consumes.
type SaleRow struct {
	Sale
	ProductName string
	Category    string
}
