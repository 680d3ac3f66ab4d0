// Package memory provides an in-memory generic.TxStore for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/gymdesk/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore. Uniqueness of phones and of
// (member, day) attendance is enforced by map keys, mirroring the unique
// indexes of the SQL store.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

type state struct {
	members        map[generic.MemberID]generic.Member
	phones         map[string]generic.MemberID
	payments       map[generic.PaymentID]generic.Payment
	attendance     map[generic.AttendanceID]generic.Attendance
	attendanceDays map[dayKey]generic.AttendanceID
	products       map[generic.ProductID]generic.Product
	sales          map[generic.SaleID]generic.Sale
	audit          []generic.AuditEntry
}

type dayKey struct {
	MemberID generic.MemberID
	Day      generic.Date
}

var (
	_ generic.TxStore = (*Memory)(nil)
	_ generic.Store   = (*state)(nil)
)

func New() *Memory {
	return &Memory{s: newState()}
}

func newState() *state {
	return &state{
		members:        make(map[generic.MemberID]generic.Member),
		phones:         make(map[string]generic.MemberID),
		payments:       make(map[generic.PaymentID]generic.Payment),
		attendance:     make(map[generic.AttendanceID]generic.Attendance),
		attendanceDays: make(map[dayKey]generic.AttendanceID),
		products:       make(map[generic.ProductID]generic.Product),
		sales:          make(map[generic.SaleID]generic.Sale),
	}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = newState()
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.members {
		c.members[k] = cloneMember(v)
	}
	for k, v := range s.phones {
		c.phones[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.attendance {
		c.attendance[k] = v
	}
	for k, v := range s.attendanceDays {
		c.attendanceDays[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = cloneSale(v)
	}
	c.audit = append([]generic.AuditEntry(nil), s.audit...)
	return c
}

func (m *Memory) read(fn func(s *state)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.s)
}

func (m *Memory) write(fn func(s *state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.s)
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) InsertMember(ctx context.Context, mem generic.Member) error {
	return m.write(func(s *state) error { return s.InsertMember(ctx, mem) })
}

func (m *Memory) UpdateMember(ctx context.Context, mem generic.Member) error {
	return m.write(func(s *state) error { return s.UpdateMember(ctx, mem) })
}

func (m *Memory) GetMember(ctx context.Context, id generic.MemberID) (mem generic.Member, err error) {
	m.read(func(s *state) { mem, err = s.GetMember(ctx, id) })
	return
}

func (m *Memory) FindMemberByPhone(ctx context.Context, phone string) (mem generic.Member, ok bool, err error) {
	m.read(func(s *state) { mem, ok, err = s.FindMemberByPhone(ctx, phone) })
	return
}

func (m *Memory) ListMembers(ctx context.Context) (out []generic.Member, err error) {
	m.read(func(s *state) { out, err = s.ListMembers(ctx) })
	return
}

func (m *Memory) DeleteMember(ctx context.Context, id generic.MemberID) error {
	return m.write(func(s *state) error { return s.DeleteMember(ctx, id) })
}

func (s *state) InsertMember(_ context.Context, mem generic.Member) error {
	if owner, taken := s.phones[mem.Phone]; taken {
		return &generic.DuplicatePhoneError{Phone: mem.Phone, ExistingMemberID: owner}
	}
	s.members[mem.ID] = cloneMember(mem)
	s.phones[mem.Phone] = mem.ID
	return nil
}

func (s *state) UpdateMember(_ context.Context, mem generic.Member) error {
	old, ok := s.members[mem.ID]
	if !ok {
		return &generic.MemberNotFoundError{MemberID: mem.ID}
	}
	if owner, taken := s.phones[mem.Phone]; taken && owner != mem.ID {
		return &generic.DuplicatePhoneError{Phone: mem.Phone, ExistingMemberID: owner}
	}
	delete(s.phones, old.Phone)
	s.phones[mem.Phone] = mem.ID
	s.members[mem.ID] = cloneMember(mem)
	return nil
}

func (s *state) GetMember(_ context.Context, id generic.MemberID) (generic.Member, error) {
	mem, ok := s.members[id]
	if !ok {
		return generic.Member{}, &generic.MemberNotFoundError{MemberID: id}
	}
	return cloneMember(mem), nil
}

func (s *state) FindMemberByPhone(_ context.Context, phone string) (generic.Member, bool, error) {
	id, ok := s.phones[phone]
	if !ok {
		return generic.Member{}, false, nil
	}
	return cloneMember(s.members[id]), true, nil
}

func (s *state) ListMembers(_ context.Context) ([]generic.Member, error) {
	out := make([]generic.Member, 0, len(s.members))
	for _, mem := range s.members {
		out = append(out, cloneMember(mem))
	}
	sort.Slice(out, func(i, j int) bool {
		if !strings.EqualFold(out[i].Name, out[j].Name) {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) DeleteMember(_ context.Context, id generic.MemberID) error {
	mem, ok := s.members[id]
	if !ok {
		return &generic.MemberNotFoundError{MemberID: id}
	}
	if s.hasDependents(id) {
		return generic.Persistence("delete member", fmt.Errorf("member %s still has ledger entries", id))
	}
	delete(s.phones, mem.Phone)
	delete(s.members, id)
	return nil
}

// hasDependents mirrors the SQL foreign keys: a member cannot be deleted while
// payments, attendance or sales still reference it.
func (s *state) hasDependents(id generic.MemberID) bool {
	for _, p := range s.payments {
		if p.MemberID == id {
			return true
		}
	}
	for _, a := range s.attendance {
		if a.MemberID == id {
			return true
		}
	}
	for _, sale := range s.sales {
		if sale.MemberID != nil && *sale.MemberID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) InsertPayment(ctx context.Context, p generic.Payment) error {
	return m.write(func(s *state) error { return s.InsertPayment(ctx, p) })
}

func (m *Memory) GetPayment(ctx context.Context, id generic.PaymentID) (p generic.Payment, err error) {
	m.read(func(s *state) { p, err = s.GetPayment(ctx, id) })
	return
}

func (m *Memory) UpdatePayment(ctx context.Context, p generic.Payment) error {
	return m.write(func(s *state) error { return s.UpdatePayment(ctx, p) })
}

func (m *Memory) DeletePayment(ctx context.Context, id generic.PaymentID) error {
	return m.write(func(s *state) error { return s.DeletePayment(ctx, id) })
}

func (m *Memory) PaymentsByMember(ctx context.Context, memberID generic.MemberID) (out []generic.Payment, err error) {
	m.read(func(s *state) { out, err = s.PaymentsByMember(ctx, memberID) })
	return
}

func (m *Memory) PaymentsInRange(ctx context.Context, from, to time.Time) (out []generic.Payment, err error) {
	m.read(func(s *state) { out, err = s.PaymentsInRange(ctx, from, to) })
	return
}

func (m *Memory) DeletePaymentsByMember(ctx context.Context, memberID generic.MemberID) (n int, err error) {
	err = m.write(func(s *state) error {
		n, err = s.DeletePaymentsByMember(ctx, memberID)
		return err
	})
	return
}

func (s *state) InsertPayment(_ context.Context, p generic.Payment) error {
	if _, ok := s.members[p.MemberID]; !ok {
		return &generic.MemberNotFoundError{MemberID: p.MemberID}
	}
	if !p.Period.End.After(p.Period.Start) {
		return generic.ErrInvalidPeriod
	}
	s.payments[p.ID] = p
	return nil
}

func (s *state) GetPayment(_ context.Context, id generic.PaymentID) (generic.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return generic.Payment{}, &generic.EntryNotFoundError{Kind: generic.EntryPayment, ID: string(id)}
	}
	return p, nil
}

func (s *state) UpdatePayment(_ context.Context, p generic.Payment) error {
	if _, ok := s.payments[p.ID]; !ok {
		return &generic.EntryNotFoundError{Kind: generic.EntryPayment, ID: string(p.ID)}
	}
	if !p.Period.End.After(p.Period.Start) {
		return generic.ErrInvalidPeriod
	}
	s.payments[p.ID] = p
	return nil
}

func (s *state) DeletePayment(_ context.Context, id generic.PaymentID) error {
	if _, ok := s.payments[id]; !ok {
		return &generic.EntryNotFoundError{Kind: generic.EntryPayment, ID: string(id)}
	}
	delete(s.payments, id)
	return nil
}

func (s *state) PaymentsByMember(_ context.Context, memberID generic.MemberID) ([]generic.Payment, error) {
	var out []generic.Payment
	for _, p := range s.payments {
		if p.MemberID == memberID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return paymentLess(out[j], out[i]) })
	return out, nil
}

func (s *state) PaymentsInRange(_ context.Context, from, to time.Time) ([]generic.Payment, error) {
	var out []generic.Payment
	for _, p := range s.payments {
		if inRange(p.PaidAt, from, to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return paymentLess(out[i], out[j]) })
	return out, nil
}

func (s *state) DeletePaymentsByMember(_ context.Context, memberID generic.MemberID) (int, error) {
	n := 0
	for id, p := range s.payments {
		if p.MemberID == memberID {
			delete(s.payments, id)
			n++
		}
	}
	return n, nil
}

func paymentLess(a, b generic.Payment) bool {
	if !a.PaidAt.Equal(b.PaidAt) {
		return a.PaidAt.Before(b.PaidAt)
	}
	return a.ID < b.ID
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) InsertAttendance(ctx context.Context, a generic.Attendance) error {
	return m.write(func(s *state) error { return s.InsertAttendance(ctx, a) })
}

func (m *Memory) AttendanceOnDay(ctx context.Context, memberID generic.MemberID, day generic.Date) (a generic.Attendance, ok bool, err error) {
	m.read(func(s *state) { a, ok, err = s.AttendanceOnDay(ctx, memberID, day) })
	return
}

func (m *Memory) AttendanceByMember(ctx context.Context, memberID generic.MemberID) (out []generic.Attendance, err error) {
	m.read(func(s *state) { out, err = s.AttendanceByMember(ctx, memberID) })
	return
}

func (m *Memory) AttendanceInPeriod(ctx context.Context, p generic.Period) (out []generic.Attendance, err error) {
	m.read(func(s *state) { out, err = s.AttendanceInPeriod(ctx, p) })
	return
}

func (m *Memory) DeleteAttendanceByMember(ctx context.Context, memberID generic.MemberID) (n int, err error) {
	err = m.write(func(s *state) error {
		n, err = s.DeleteAttendanceByMember(ctx, memberID)
		return err
	})
	return
}

func (s *state) InsertAttendance(_ context.Context, a generic.Attendance) error {
	if _, ok := s.members[a.MemberID]; !ok {
		return &generic.MemberNotFoundError{MemberID: a.MemberID}
	}
	k := dayKey{MemberID: a.MemberID, Day: a.Day}
	if existing, taken := s.attendanceDays[k]; taken {
		return &generic.AlreadyCheckedInError{
			MemberID:   a.MemberID,
			Day:        a.Day,
			ExistingAt: s.attendance[existing].CheckedInAt,
		}
	}
	s.attendance[a.ID] = a
	s.attendanceDays[k] = a.ID
	return nil
}

func (s *state) AttendanceOnDay(_ context.Context, memberID generic.MemberID, day generic.Date) (generic.Attendance, bool, error) {
	id, ok := s.attendanceDays[dayKey{MemberID: memberID, Day: day}]
	if !ok {
		return generic.Attendance{}, false, nil
	}
	return s.attendance[id], true, nil
}

func (s *state) AttendanceByMember(_ context.Context, memberID generic.MemberID) ([]generic.Attendance, error) {
	var out []generic.Attendance
	for _, a := range s.attendance {
		if a.MemberID == memberID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedInAt.After(out[j].CheckedInAt) })
	return out, nil
}

func (s *state) AttendanceInPeriod(_ context.Context, p generic.Period) ([]generic.Attendance, error) {
	var out []generic.Attendance
	for _, a := range s.attendance {
		if p.Contains(a.Day) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckedInAt.Equal(out[j].CheckedInAt) {
			return out[i].CheckedInAt.Before(out[j].CheckedInAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) DeleteAttendanceByMember(_ context.Context, memberID generic.MemberID) (int, error) {
	n := 0
	for id, a := range s.attendance {
		if a.MemberID == memberID {
			delete(s.attendance, id)
			delete(s.attendanceDays, dayKey{MemberID: a.MemberID, Day: a.Day})
			n++
		}
	}
	return n, nil
}

// =============================================================================
// PRODUCTS & SALES
// =============================================================================

func (m *Memory) InsertProduct(ctx context.Context, p generic.Product) error {
	return m.write(func(s *state) error { return s.InsertProduct(ctx, p) })
}

func (m *Memory) GetProduct(ctx context.Context, id generic.ProductID) (p generic.Product, err error) {
	m.read(func(s *state) { p, err = s.GetProduct(ctx, id) })
	return
}

func (m *Memory) UpdateProduct(ctx context.Context, p generic.Product) error {
	return m.write(func(s *state) error { return s.UpdateProduct(ctx, p) })
}

func (m *Memory) ListProducts(ctx context.Context) (out []generic.Product, err error) {
	m.read(func(s *state) { out, err = s.ListProducts(ctx) })
	return
}

func (m *Memory) InsertSale(ctx context.Context, sale generic.Sale) error {
	return m.write(func(s *state) error { return s.InsertSale(ctx, sale) })
}

func (m *Memory) GetSale(ctx context.Context, id generic.SaleID) (sale generic.Sale, err error) {
	m.read(func(s *state) { sale, err = s.GetSale(ctx, id) })
	return
}

func (m *Memory) UpdateSale(ctx context.Context, sale generic.Sale) error {
	return m.write(func(s *state) error { return s.UpdateSale(ctx, sale) })
}

func (m *Memory) DeleteSale(ctx context.Context, id generic.SaleID) error {
	return m.write(func(s *state) error { return s.DeleteSale(ctx, id) })
}

func (m *Memory) SalesInRange(ctx context.Context, from, to time.Time) (out []generic.SaleRow, err error) {
	m.read(func(s *state) { out, err = s.SalesInRange(ctx, from, to) })
	return
}

func (m *Memory) SalesByMember(ctx context.Context, memberID generic.MemberID) (out []generic.SaleRow, err error) {
	m.read(func(s *state) { out, err = s.SalesByMember(ctx, memberID) })
	return
}

func (m *Memory) DetachSalesFromMember(ctx context.Context, memberID generic.MemberID) (n int, err error) {
	err = m.write(func(s *state) error {
		n, err = s.DetachSalesFromMember(ctx, memberID)
		return err
	})
	return
}

func (s *state) InsertProduct(_ context.Context, p generic.Product) error {
	s.products[p.ID] = p
	return nil
}

func (s *state) GetProduct(_ context.Context, id generic.ProductID) (generic.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return generic.Product{}, generic.ErrProductNotFound
	}
	return p, nil
}

func (s *state) UpdateProduct(_ context.Context, p generic.Product) error {
	if _, ok := s.products[p.ID]; !ok {
		return generic.ErrProductNotFound
	}
	s.products[p.ID] = p
	return nil
}

func (s *state) ListProducts(_ context.Context) ([]generic.Product, error) {
	out := make([]generic.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) InsertSale(_ context.Context, sale generic.Sale) error {
	if _, ok := s.products[sale.ProductID]; !ok {
		return generic.ErrProductNotFound
	}
	if sale.MemberID != nil {
		if _, ok := s.members[*sale.MemberID]; !ok {
			return &generic.MemberNotFoundError{MemberID: *sale.MemberID}
		}
	}
	s.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (s *state) GetSale(_ context.Context, id generic.SaleID) (generic.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return generic.Sale{}, &generic.EntryNotFoundError{Kind: generic.EntrySale, ID: string(id)}
	}
	return cloneSale(sale), nil
}

func (s *state) UpdateSale(_ context.Context, sale generic.Sale) error {
	if _, ok := s.sales[sale.ID]; !ok {
		return &generic.EntryNotFoundError{Kind: generic.EntrySale, ID: string(sale.ID)}
	}
	s.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (s *state) DeleteSale(_ context.Context, id generic.SaleID) error {
	if _, ok := s.sales[id]; !ok {
		return &generic.EntryNotFoundError{Kind: generic.EntrySale, ID: string(id)}
	}
	delete(s.sales, id)
	return nil
}

func (s *state) SalesInRange(_ context.Context, from, to time.Time) ([]generic.SaleRow, error) {
	var out []generic.SaleRow
	for _, sale := range s.sales {
		if inRange(sale.SoldAt, from, to) {
			out = append(out, s.saleRow(sale))
		}
	}
	sort.Slice(out, func(i, j int) bool { return saleLess(out[i].Sale, out[j].Sale) })
	return out, nil
}

func (s *state) SalesByMember(_ context.Context, memberID generic.MemberID) ([]generic.SaleRow, error) {
	var out []generic.SaleRow
	for _, sale := range s.sales {
		if sale.MemberID != nil && *sale.MemberID == memberID {
			out = append(out, s.saleRow(sale))
		}
	}
	sort.Slice(out, func(i, j int) bool { return saleLess(out[j].Sale, out[i].Sale) })
	return out, nil
}

func (s *state) DetachSalesFromMember(_ context.Context, memberID generic.MemberID) (int, error) {
	n := 0
	for id, sale := range s.sales {
		if sale.MemberID != nil && *sale.MemberID == memberID {
			sale.MemberID = nil
			s.sales[id] = sale
			n++
		}
	}
	return n, nil
}

func (s *state) saleRow(sale generic.Sale) generic.SaleRow {
	p := s.products[sale.ProductID]
	return generic.SaleRow{Sale: cloneSale(sale), ProductName: p.Name, Category: p.Category}
}

func saleLess(a, b generic.Sale) bool {
	if !a.SoldAt.Equal(b.SoldAt) {
		return a.SoldAt.Before(b.SoldAt)
	}
	return a.ID < b.ID
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	return m.write(func(s *state) error { return s.AppendAudit(ctx, e) })
}

func (m *Memory) QueryAudit(ctx context.Context, f generic.AuditFilter) (out []generic.AuditEntry, err error) {
	m.read(func(s *state) { out, err = s.QueryAudit(ctx, f) })
	return
}

func (s *state) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	s.audit = append(s.audit, e)
	return nil
}

func (s *state) QueryAudit(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var out []generic.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		if f.Matches(s.audit[i]) {
			out = append(out, s.audit[i])
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func cloneMember(m generic.Member) generic.Member {
	if m.PlanExpiration != nil {
		exp := *m.PlanExpiration
		m.PlanExpiration = &exp
	}
	return m
}

func cloneSale(s generic.Sale) generic.Sale {
	if s.MemberID != nil {
		id := *s.MemberID
		s.MemberID = &id
	}
	return s
}
