// Package storetest holds behaviour tests shared by every generic.TxStore
// implementation. Each backend calls Run from its own _test.go file.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gymdesk/generic"
)

// Factory returns an empty store.
type Factory func(t *testing.T) generic.TxStore

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("MemberPhoneIsUnique", func(t *testing.T) { testPhoneUnique(t, newStore(t)) })
	t.Run("MemberRoundTrip", func(t *testing.T) { testMemberRoundTrip(t, newStore(t)) })
	t.Run("AttendanceOncePerDay", func(t *testing.T) { testAttendanceOncePerDay(t, newStore(t)) })
	t.Run("PaymentOrdering", func(t *testing.T) { testPaymentOrdering(t, newStore(t)) })
	t.Run("SalesJoinProducts", func(t *testing.T) { testSalesJoin(t, newStore(t)) })
	t.Run("DeleteMemberNeedsCascade", func(t *testing.T) { testDeleteMemberNeedsCascade(t, newStore(t)) })
	t.Run("WithTxRollsBack", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("AuditQuery", func(t *testing.T) { testAuditQuery(t, newStore(t)) })
}

var (
	bogota, _ = time.LoadLocation(generic.DefaultTimeZone)
	jan1      = generic.NewDate(2024, time.January, 1)
)

// at returns a business-zone instant on d, truncated to what every backend stores.
func at(d generic.Date, hour int) time.Time {
	return d.StartIn(bogota).Add(time.Duration(hour) * time.Hour)
}

func member(name, phone string) generic.Member {
	exp := jan1.AddDays(30)
	return generic.Member{
		ID:             generic.MemberID(generic.NewID()),
		Name:           name,
		Phone:          phone,
		Plan:           "MONTHLY",
		JoinDate:       jan1,
		PlanExpiration: &exp,
		PlanPrice:      generic.NewAmountFromInt(70000),
		CreatedAt:      at(jan1, 9),
	}
}

func payment(memberID generic.MemberID, amount int64, paidAt time.Time) generic.Payment {
	return generic.Payment{
		ID:       generic.PaymentID(generic.NewID()),
		MemberID: memberID,
		Amount:   generic.NewAmountFromInt(amount),
		Method:   "Efectivo",
		Plan:     "MONTHLY",
		Period:   generic.Period{Start: jan1, End: jan1.AddDays(30)},
		PaidAt:   paidAt,
	}
}

func testPhoneUnique(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	ana := member("Ana", "3001234567")
	require.NoError(t, s.InsertMember(ctx, ana))

	// GIVEN a second member with the same phone
	err := s.InsertMember(ctx, member("Other", "3001234567"))

	// THEN the insert is rejected as a duplicate
	var dup *generic.DuplicatePhoneError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "3001234567", dup.Phone)

	members, err := s.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	// Changing a phone to one already taken is rejected too
	bob := member("Bob", "3110000000")
	require.NoError(t, s.InsertMember(ctx, bob))
	bob.Phone = ana.Phone
	assert.ErrorIs(t, s.UpdateMember(ctx, bob), generic.ErrDuplicatePhone)
}

func testMemberRoundTrip(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	ana := member("Ana", "3001234567")
	require.NoError(t, s.InsertMember(ctx, ana))

	got, err := s.GetMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, ana.Name, got.Name)
	assert.Equal(t, "2024-01-31", got.PlanExpiration.String())
	assert.Equal(t, "70000.00", got.PlanPrice.String())
	assert.True(t, ana.CreatedAt.Equal(got.CreatedAt))

	found, ok, err := s.FindMemberByPhone(ctx, "3001234567")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ana.ID, found.ID)

	_, ok, err = s.FindMemberByPhone(ctx, "999")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetMember(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrMemberNotFound)

	// Clearing the expiration persists as no plan
	got.PlanExpiration = nil
	got.Name = "Ana María"
	require.NoError(t, s.UpdateMember(ctx, got))
	got, err = s.GetMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PlanExpiration)
	assert.Equal(t, "Ana María", got.Name)
}

func testAttendanceOncePerDay(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	ana := member("Ana", "3001234567")
	require.NoError(t, s.InsertMember(ctx, ana))
	day := jan1.AddDays(14)

	first := generic.Attendance{ID: generic.AttendanceID(generic.NewID()), MemberID: ana.ID, CheckedInAt: at(day, 7), Day: day}
	require.NoError(t, s.InsertAttendance(ctx, first))

	// WHEN the same member checks in again that day
	second := generic.Attendance{ID: generic.AttendanceID(generic.NewID()), MemberID: ana.ID, CheckedInAt: at(day, 18), Day: day}
	err := s.InsertAttendance(ctx, second)

	// THEN the store refuses it
	assert.ErrorIs(t, err, generic.ErrAlreadyCheckedIn)

	existing, ok, err := s.AttendanceOnDay(ctx, ana.ID, day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, existing.ID)

	// The next day is fine
	next := day.AddDays(1)
	require.NoError(t, s.InsertAttendance(ctx, generic.Attendance{
		ID: generic.AttendanceID(generic.NewID()), MemberID: ana.ID, CheckedInAt: at(next, 7), Day: next,
	}))

	month := generic.MonthPeriod(day)
	visits, err := s.AttendanceInPeriod(ctx, month)
	require.NoError(t, err)
	assert.Len(t, visits, 2)

	history, err := s.AttendanceByMember(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, next, history[0].Day, "newest first")
}

func testPaymentOrdering(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	ana := member("Ana", "3001234567")
	require.NoError(t, s.InsertMember(ctx, ana))

	early := payment(ana.ID, 70000, at(jan1, 8))
	late := payment(ana.ID, 35000, at(jan1.AddDays(35), 8))
	require.NoError(t, s.InsertPayment(ctx, late))
	require.NoError(t, s.InsertPayment(ctx, early))

	byMember, err := s.PaymentsByMember(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, byMember, 2)
	assert.Equal(t, late.ID, byMember[0].ID, "newest first")

	// January only: half-open upper bound excludes February
	from, to := generic.MonthPeriod(jan1).Bounds(bogota)
	inJan, err := s.PaymentsInRange(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, inJan, 1)
	assert.Equal(t, "70000.00", inJan[0].Amount.String())
	assert.Equal(t, "[2024-01-01, 2024-01-31)", inJan[0].Period.String())

	// Payment for an unknown member is refused
	err = s.InsertPayment(ctx, payment("ghost", 1000, at(jan1, 8)))
	assert.Error(t, err)

	// Correction in place
	early.Amount = generic.NewAmountFromInt(60000)
	require.NoError(t, s.UpdatePayment(ctx, early))
	got, err := s.GetPayment(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, "60000.00", got.Amount.String())

	require.NoError(t, s.DeletePayment(ctx, early.ID))
	_, err = s.GetPayment(ctx, early.ID)
	assert.ErrorIs(t, err, generic.ErrEntryNotFound)
}

func testSalesJoin(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	ana := member("Ana", "3001234567")
	require.NoError(t, s.InsertMember(ctx, ana))

	water := generic.Product{
		ID: generic.ProductID(generic.NewID()), Name: "Agua", Category: "Bebidas",
		Price: generic.NewAmountFromInt(2500), Stock: 10, CreatedAt: at(jan1, 8),
	}
	require.NoError(t, s.InsertProduct(ctx, water))

	sale := generic.Sale{
		ID: generic.SaleID(generic.NewID()), ProductID: water.ID, MemberID: &ana.ID,
		Quantity: 2, UnitPrice: water.Price, Total: water.Price.MulInt(2),
		Method: "Nequi", SoldAt: at(jan1.AddDays(3), 10),
	}
	require.NoError(t, s.InsertSale(ctx, sale))

	from, to := generic.MonthPeriod(jan1).Bounds(bogota)
	rows, err := s.SalesInRange(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Agua", rows[0].ProductName)
	assert.Equal(t, "Bebidas", rows[0].Category)
	assert.Equal(t, "5000.00", rows[0].Total.String())
	require.NotNil(t, rows[0].MemberID)

	// Detaching keeps the sale but drops the member link
	n, err := s.DetachSalesFromMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MemberID)

	_, err = s.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrProductNotFound)
}

func testDeleteMemberNeedsCascade(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	ana := member("Ana", "3001234567")
	require.NoError(t, s.InsertMember(ctx, ana))
	require.NoError(t, s.InsertPayment(ctx, payment(ana.ID, 70000, at(jan1, 8))))

	// GIVEN a member with ledger entries, deleting the row alone fails
	assert.Error(t, s.DeleteMember(ctx, ana.ID))

	// WHEN the dependents are removed first
	n, err := s.DeletePaymentsByMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.DeleteMember(ctx, ana.ID))

	// THEN the phone is free again
	require.NoError(t, s.InsertMember(ctx, member("Ana 2", "3001234567")))
	assert.ErrorIs(t, s.DeleteMember(ctx, ana.ID), generic.ErrMemberNotFound)
}

func testWithTxRollback(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	ana := member("Ana", "3001234567")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.InsertMember(ctx, ana); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, payment(ana.ID, 70000, at(jan1, 8))); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes
		if _, err := tx.GetMember(ctx, ana.ID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetMember(ctx, ana.ID)
	assert.ErrorIs(t, err, generic.ErrMemberNotFound, "member rolled back")
	payments, err := s.PaymentsByMember(ctx, ana.ID)
	require.NoError(t, err)
	assert.Empty(t, payments, "payment rolled back")

	require.NoError(t, s.WithTx(ctx, func(tx generic.Store) error {
		return tx.InsertMember(ctx, ana)
	}))
	_, err = s.GetMember(ctx, ana.ID)
	assert.NoError(t, err)
}

func testAuditQuery(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	before, _ := json.Marshal(map[string]string{"amount": "70000.00"})
	after, _ := json.Marshal(map[string]string{"amount": "60000.00"})

	entries := []generic.AuditEntry{
		{ID: generic.NewID(), RecordedAt: at(jan1, 9), Actor: "admin", Action: generic.AuditPaymentCorrected,
			Kind: generic.EntryPayment, EntryID: "p-1", Reason: "typo", Before: before, After: after},
		{ID: generic.NewID(), RecordedAt: at(jan1, 10), Actor: "admin", Action: generic.AuditPaymentDeleted,
			Kind: generic.EntryPayment, EntryID: "p-1", Before: after},
		{ID: generic.NewID(), RecordedAt: at(jan1, 11), Actor: "desk", Action: generic.AuditSaleDeleted,
			Kind: generic.EntrySale, EntryID: "s-1"},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	got, err := s.QueryAudit(ctx, generic.AuditFilter{EntryID: "p-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, generic.AuditPaymentDeleted, got[0].Action, "newest first")
	assert.JSONEq(t, string(before), string(got[1].Before))
	assert.Equal(t, "typo", got[1].Reason)

	got, err = s.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditSaleDeleted}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "desk", got[0].Actor)

	got, err = s.QueryAudit(ctx, generic.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
