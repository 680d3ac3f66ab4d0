/*
Package sqlstore provides a SQL-backed implementation of generic.TxStore.

PURPOSE:
  Implements every persistence interface (members, payments, attendance,
  products, sales, audit log) on database/sql. The same schema runs on
  SQLite (github.com/mattn/go-sqlite3) and PostgreSQL (github.com/jackc/pgx/v5
  through its database/sql driver); only placeholder syntax differs.

KEY TABLES:
  members:    Identity, current plan, expiration and price snapshot
  payments:   Payment ledger, FK members
  attendance: Attendance ledger, FK members, UNIQUE(member_id, check_in_day)
  products:   Retail catalog with stock
  sales:      Sales ledger, FK products, nullable FK members
  audit_log:  Corrections and removals with before/after JSON

CONSTRAINTS:
  - members.phone UNIQUE            -> generic.ErrDuplicatePhone
  - attendance(member_id, day) UNIQUE -> generic.ErrAlreadyCheckedIn
  - payments.period_end > period_start CHECK
  - No ON DELETE CASCADE: removing a member is an explicit procedure
    (membership.Manager.Remove) that deletes payments and attendance and
    detaches sales before deleting the member row.

STORAGE FORMATS:
  Money is TEXT holding the exact decimal string and is summed in Go.
  Dates are TEXT YYYY-MM-DD. Instants are TEXT in a fixed-width UTC layout,
  so lexical order equals chronological order on both engines.

CONCURRENCY:
  WithTx serializes writers with a mutex, which keeps SQLite away from
  SQLITE_BUSY. Reads go straight to the pool and never take the lock.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./gymdesk.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/gymdesk/generic"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	// timestampLayout is fixed width so TEXT comparison orders chronologically.
	timestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Store implements generic.TxStore.
type Store struct {
	*conn
	db *sql.DB
	mu sync.Mutex
}

var _ generic.TxStore = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements generic.Store on a querier. The pool-backed Store and
// every transaction view share it.
type conn struct {
	q        querier
	postgres bool
}

var _ generic.Store = (*conn)(nil)

// NormalizeDriver maps configuration names onto registered driver names.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported storage driver %q", name)
	}
}

// Open connects and migrates. For SQLite, dsn is a file path or ":memory:".
func Open(driver, dsn string) (*Store, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite && strings.HasPrefix(dsn, ":memory:") {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		conn: &conn{q: db, postgres: driver == DriverPostgres},
		db:   db,
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// SCHEMA
// =============================================================================

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		plan TEXT NOT NULL,
		join_date TEXT NOT NULL,
		plan_expiration TEXT,
		plan_price TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_members_expiration ON members(plan_expiration)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		amount TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		plan TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		CHECK (period_end > period_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_member ON payments(member_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_paid_at ON payments(paid_at)`,

	// One check-in per member per business day. The service checks first;
	// this index catches concurrent writers.
	`CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		checked_in_at TEXT NOT NULL,
		check_in_day TEXT NOT NULL,
		CONSTRAINT uq_attendance_member_day UNIQUE (member_id, check_in_day)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance(check_in_day)`,

	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		member_id TEXT REFERENCES members(id),
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		sold_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_sold_at ON sales(sold_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_member ON sales(member_id)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		recorded_at TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		entry_kind TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		reason TEXT,
		before_json TEXT,
		after_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entry ON audit_log(entry_kind, entry_id)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// Reset deletes every row. Intended for demo seeding only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Persistence("begin transaction", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"audit_log", "sales", "attendance", "payments", "products", "members"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return generic.Persistence("reset "+table, err)
		}
	}
	return generic.Persistence("commit transaction", tx.Commit())
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. fn receives a Store bound
// to the transaction; every read and write it makes sees the tx's state.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Persistence("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx, postgres: s.postgres}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return generic.Persistence("commit transaction", err)
	}
	return nil
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (c *conn) rebind(query string) string {
	if !c.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (c *conn) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (c *conn) execCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// MEMBERS
// =============================================================================

const memberColumns = `id, name, phone, plan, join_date, plan_expiration, plan_price, created_at`

func (c *conn) InsertMember(ctx context.Context, m generic.Member) error {
	_, err := c.exec(ctx, `INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Phone, m.Plan, m.JoinDate.String(), nullDate(m.PlanExpiration),
		m.PlanPrice.Value.String(), formatTime(m.CreatedAt))
	if isUniqueViolation(err) {
		return &generic.DuplicatePhoneError{Phone: m.Phone}
	}
	return generic.Persistence("insert member", err)
}

func (c *conn) UpdateMember(ctx context.Context, m generic.Member) error {
	err := c.execOne(ctx, &generic.MemberNotFoundError{MemberID: m.ID},
		`UPDATE members SET name = ?, phone = ?, plan = ?, join_date = ?, plan_expiration = ?, plan_price = ?
		 WHERE id = ?`,
		m.Name, m.Phone, m.Plan, m.JoinDate.String(), nullDate(m.PlanExpiration),
		m.PlanPrice.Value.String(), m.ID)
	if isUniqueViolation(err) {
		return &generic.DuplicatePhoneError{Phone: m.Phone}
	}
	return generic.Persistence("update member", err)
}

func (c *conn) GetMember(ctx context.Context, id generic.MemberID) (generic.Member, error) {
	m, err := scanMember(c.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Member{}, &generic.MemberNotFoundError{MemberID: id}
	}
	return m, generic.Persistence("get member", err)
}

func (c *conn) FindMemberByPhone(ctx context.Context, phone string) (generic.Member, bool, error) {
	m, err := scanMember(c.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE phone = ?`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Member{}, false, nil
	}
	if err != nil {
		return generic.Member{}, false, generic.Persistence("find member by phone", err)
	}
	return m, true, nil
}

func (c *conn) ListMembers(ctx context.Context) ([]generic.Member, error) {
	rows, err := c.query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY LOWER(name), id`)
	if err != nil {
		return nil, generic.Persistence("list members", err)
	}
	defer rows.Close()

	var members []generic.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, generic.Persistence("scan member", err)
		}
		members = append(members, m)
	}
	return members, generic.Persistence("list members", rows.Err())
}

func (c *conn) DeleteMember(ctx context.Context, id generic.MemberID) error {
	err := c.execOne(ctx, &generic.MemberNotFoundError{MemberID: id},
		`DELETE FROM members WHERE id = ?`, id)
	return generic.Persistence("delete member", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (generic.Member, error) {
	var (
		m          generic.Member
		joinDate   string
		expiration sql.NullString
		price      string
		createdAt  string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Phone, &m.Plan, &joinDate, &expiration, &price, &createdAt); err != nil {
		return m, err
	}
	var err error
	if m.JoinDate, err = generic.ParseDate(joinDate); err != nil {
		return m, err
	}
	if expiration.Valid {
		exp, err := generic.ParseDate(expiration.String)
		if err != nil {
			return m, err
		}
		m.PlanExpiration = &exp
	}
	if m.PlanPrice, err = parseAmount("plan_price", price); err != nil {
		return m, err
	}
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, member_id, amount, payment_method, plan, period_start, period_end, paid_at`

func (c *conn) InsertPayment(ctx context.Context, p generic.Payment) error {
	_, err := c.exec(ctx, `INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.Amount.Value.String(), p.Method, p.Plan,
		p.Period.Start.String(), p.Period.End.String(), formatTime(p.PaidAt))
	if isForeignKeyViolation(err) {
		return &generic.MemberNotFoundError{MemberID: p.MemberID}
	}
	if isCheckViolation(err) {
		return generic.ErrInvalidPeriod
	}
	return generic.Persistence("insert payment", err)
}

func (c *conn) GetPayment(ctx context.Context, id generic.PaymentID) (generic.Payment, error) {
	p, err := scanPayment(c.queryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Payment{}, &generic.EntryNotFoundError{Kind: generic.EntryPayment, ID: string(id)}
	}
	return p, generic.Persistence("get payment", err)
}

func (c *conn) UpdatePayment(ctx context.Context, p generic.Payment) error {
	err := c.execOne(ctx, &generic.EntryNotFoundError{Kind: generic.EntryPayment, ID: string(p.ID)},
		`UPDATE payments SET amount = ?, payment_method = ?, plan = ?, period_start = ?, period_end = ?, paid_at = ?
		 WHERE id = ?`,
		p.Amount.Value.String(), p.Method, p.Plan, p.Period.Start.String(), p.Period.End.String(),
		formatTime(p.PaidAt), p.ID)
	if isCheckViolation(err) {
		return generic.ErrInvalidPeriod
	}
	return generic.Persistence("update payment", err)
}

func (c *conn) DeletePayment(ctx context.Context, id generic.PaymentID) error {
	err := c.execOne(ctx, &generic.EntryNotFoundError{Kind: generic.EntryPayment, ID: string(id)},
		`DELETE FROM payments WHERE id = ?`, id)
	return generic.Persistence("delete payment", err)
}

func (c *conn) PaymentsByMember(ctx context.Context, memberID generic.MemberID) ([]generic.Payment, error) {
	return c.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE member_id = ?
		ORDER BY paid_at DESC, id DESC`, memberID)
}

func (c *conn) PaymentsInRange(ctx context.Context, from, to time.Time) ([]generic.Payment, error) {
	return c.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE paid_at >= ? AND paid_at < ?
		ORDER BY paid_at ASC, id ASC`, formatTime(from), formatTime(to))
}

func (c *conn) DeletePaymentsByMember(ctx context.Context, memberID generic.MemberID) (int, error) {
	n, err := c.execCount(ctx, `DELETE FROM payments WHERE member_id = ?`, memberID)
	return n, generic.Persistence("delete member payments", err)
}

func (c *conn) queryPayments(ctx context.Context, query string, args ...any) ([]generic.Payment, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, generic.Persistence("query payments", err)
	}
	defer rows.Close()

	var payments []generic.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, generic.Persistence("scan payment", err)
		}
		payments = append(payments, p)
	}
	return payments, generic.Persistence("query payments", rows.Err())
}

func scanPayment(row scanner) (generic.Payment, error) {
	var (
		p                      generic.Payment
		amount                 string
		periodStart, periodEnd string
		paidAt                 string
	)
	if err := row.Scan(&p.ID, &p.MemberID, &amount, &p.Method, &p.Plan, &periodStart, &periodEnd, &paidAt); err != nil {
		return p, err
	}
	start, err := generic.ParseDate(periodStart)
	if err != nil {
		return p, err
	}
	end, err := generic.ParseDate(periodEnd)
	if err != nil {
		return p, err
	}
	if p.Amount, err = parseAmount("amount", amount); err != nil {
		return p, err
	}
	p.Period = generic.Period{Start: start, End: end}
	p.PaidAt = parseTime(paidAt)
	return p, nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

const attendanceColumns = `id, member_id, checked_in_at, check_in_day`

func (c *conn) InsertAttendance(ctx context.Context, a generic.Attendance) error {
	_, err := c.exec(ctx, `INSERT INTO attendance (`+attendanceColumns+`) VALUES (?, ?, ?, ?)`,
		a.ID, a.MemberID, formatTime(a.CheckedInAt), a.Day.String())
	if isUniqueViolation(err) {
		return &generic.AlreadyCheckedInError{MemberID: a.MemberID, Day: a.Day}
	}
	if isForeignKeyViolation(err) {
		return &generic.MemberNotFoundError{MemberID: a.MemberID}
	}
	return generic.Persistence("insert attendance", err)
}

func (c *conn) AttendanceOnDay(ctx context.Context, memberID generic.MemberID, day generic.Date) (generic.Attendance, bool, error) {
	a, err := scanAttendance(c.queryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance
		WHERE member_id = ? AND check_in_day = ?`, memberID, day.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Attendance{}, false, nil
	}
	if err != nil {
		return generic.Attendance{}, false, generic.Persistence("attendance on day", err)
	}
	return a, true, nil
}

func (c *conn) AttendanceByMember(ctx context.Context, memberID generic.MemberID) ([]generic.Attendance, error) {
	return c.queryAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE member_id = ?
		ORDER BY checked_in_at DESC`, memberID)
}

func (c *conn) AttendanceInPeriod(ctx context.Context, p generic.Period) ([]generic.Attendance, error) {
	return c.queryAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance
		WHERE check_in_day >= ? AND check_in_day < ?
		ORDER BY checked_in_at ASC, id ASC`, p.Start.String(), p.End.String())
}

func (c *conn) DeleteAttendanceByMember(ctx context.Context, memberID generic.MemberID) (int, error) {
	n, err := c.execCount(ctx, `DELETE FROM attendance WHERE member_id = ?`, memberID)
	return n, generic.Persistence("delete member attendance", err)
}

func (c *conn) queryAttendance(ctx context.Context, query string, args ...any) ([]generic.Attendance, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, generic.Persistence("query attendance", err)
	}
	defer rows.Close()

	var out []generic.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, generic.Persistence("scan attendance", err)
		}
		out = append(out, a)
	}
	return out, generic.Persistence("query attendance", rows.Err())
}

func scanAttendance(row scanner) (generic.Attendance, error) {
	var (
		a         generic.Attendance
		checkedIn string
		day       string
	)
	if err := row.Scan(&a.ID, &a.MemberID, &checkedIn, &day); err != nil {
		return a, err
	}
	d, err := generic.ParseDate(day)
	if err != nil {
		return a, err
	}
	a.Day = d
	a.CheckedInAt = parseTime(checkedIn)
	return a, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, category, price, stock, created_at`

func (c *conn) InsertProduct(ctx context.Context, p generic.Product) error {
	_, err := c.exec(ctx, `INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Category, p.Price.Value.String(), p.Stock, formatTime(p.CreatedAt))
	return generic.Persistence("insert product", err)
}

func (c *conn) GetProduct(ctx context.Context, id generic.ProductID) (generic.Product, error) {
	p, err := scanProduct(c.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Product{}, generic.ErrProductNotFound
	}
	return p, generic.Persistence("get product", err)
}

func (c *conn) UpdateProduct(ctx context.Context, p generic.Product) error {
	err := c.execOne(ctx, generic.ErrProductNotFound,
		`UPDATE products SET name = ?, category = ?, price = ?, stock = ? WHERE id = ?`,
		p.Name, p.Category, p.Price.Value.String(), p.Stock, p.ID)
	return generic.Persistence("update product", err)
}

func (c *conn) ListProducts(ctx context.Context) ([]generic.Product, error) {
	rows, err := c.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, generic.Persistence("list products", err)
	}
	defer rows.Close()

	var products []generic.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, generic.Persistence("scan product", err)
		}
		products = append(products, p)
	}
	return products, generic.Persistence("list products", rows.Err())
}

func scanProduct(row scanner) (generic.Product, error) {
	var (
		p         generic.Product
		price     string
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &price, &p.Stock, &createdAt); err != nil {
		return p, err
	}
	var err error
	if p.Price, err = parseAmount("price", price); err != nil {
		return p, err
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// =============================================================================
// SALES
// =============================================================================

const saleColumns = `id, product_id, member_id, quantity, unit_price, total, payment_method, sold_at`

const saleRowSelect = `SELECT s.id, s.product_id, s.member_id, s.quantity, s.unit_price, s.total,
		s.payment_method, s.sold_at, p.name, p.category
	FROM sales s JOIN products p ON p.id = s.product_id`

func (c *conn) InsertSale(ctx context.Context, s generic.Sale) error {
	_, err := c.exec(ctx, `INSERT INTO sales (`+saleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProductID, nullMemberID(s.MemberID), s.Quantity, s.UnitPrice.Value.String(),
		s.Total.Value.String(), s.Method, formatTime(s.SoldAt))
	return generic.Persistence("insert sale", err)
}

func (c *conn) GetSale(ctx context.Context, id generic.SaleID) (generic.Sale, error) {
	s, err := scanSale(c.queryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Sale{}, &generic.EntryNotFoundError{Kind: generic.EntrySale, ID: string(id)}
	}
	return s, generic.Persistence("get sale", err)
}

func (c *conn) UpdateSale(ctx context.Context, s generic.Sale) error {
	err := c.execOne(ctx, &generic.EntryNotFoundError{Kind: generic.EntrySale, ID: string(s.ID)},
		`UPDATE sales SET product_id = ?, member_id = ?, quantity = ?, unit_price = ?, total = ?,
			payment_method = ?, sold_at = ?
		 WHERE id = ?`,
		s.ProductID, nullMemberID(s.MemberID), s.Quantity, s.UnitPrice.Value.String(),
		s.Total.Value.String(), s.Method, formatTime(s.SoldAt), s.ID)
	return generic.Persistence("update sale", err)
}

func (c *conn) DeleteSale(ctx context.Context, id generic.SaleID) error {
	err := c.execOne(ctx, &generic.EntryNotFoundError{Kind: generic.EntrySale, ID: string(id)},
		`DELETE FROM sales WHERE id = ?`, id)
	return generic.Persistence("delete sale", err)
}

func (c *conn) SalesInRange(ctx context.Context, from, to time.Time) ([]generic.SaleRow, error) {
	return c.querySaleRows(ctx, saleRowSelect+` WHERE s.sold_at >= ? AND s.sold_at < ?
		ORDER BY s.sold_at ASC, s.id ASC`, formatTime(from), formatTime(to))
}

func (c *conn) SalesByMember(ctx context.Context, memberID generic.MemberID) ([]generic.SaleRow, error) {
	return c.querySaleRows(ctx, saleRowSelect+` WHERE s.member_id = ?
		ORDER BY s.sold_at DESC, s.id DESC`, memberID)
}

func (c *conn) DetachSalesFromMember(ctx context.Context, memberID generic.MemberID) (int, error) {
	n, err := c.execCount(ctx, `UPDATE sales SET member_id = NULL WHERE member_id = ?`, memberID)
	return n, generic.Persistence("detach member sales", err)
}

func (c *conn) querySaleRows(ctx context.Context, query string, args ...any) ([]generic.SaleRow, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, generic.Persistence("query sales", err)
	}
	defer rows.Close()

	var out []generic.SaleRow
	for rows.Next() {
		var (
			r        generic.SaleRow
			memberID sql.NullString
			unit     string
			total    string
			soldAt   string
		)
		if err := rows.Scan(&r.ID, &r.ProductID, &memberID, &r.Quantity, &unit, &total,
			&r.Method, &soldAt, &r.ProductName, &r.Category); err != nil {
			return nil, generic.Persistence("scan sale", err)
		}
		r.MemberID = memberIDPtr(memberID)
		var err error
		if r.UnitPrice, err = parseAmount("unit_price", unit); err != nil {
			return nil, generic.Persistence("scan sale", err)
		}
		if r.Total, err = parseAmount("total", total); err != nil {
			return nil, generic.Persistence("scan sale", err)
		}
		r.SoldAt = parseTime(soldAt)
		out = append(out, r)
	}
	return out, generic.Persistence("query sales", rows.Err())
}

func scanSale(row scanner) (generic.Sale, error) {
	var (
		s        generic.Sale
		memberID sql.NullString
		unit     string
		total    string
		soldAt   string
	)
	if err := row.Scan(&s.ID, &s.ProductID, &memberID, &s.Quantity, &unit, &total, &s.Method, &soldAt); err != nil {
		return s, err
	}
	s.MemberID = memberIDPtr(memberID)
	var err error
	if s.UnitPrice, err = parseAmount("unit_price", unit); err != nil {
		return s, err
	}
	if s.Total, err = parseAmount("total", total); err != nil {
		return s, err
	}
	s.SoldAt = parseTime(soldAt)
	return s, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (c *conn) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	_, err := c.exec(ctx, `INSERT INTO audit_log
		(id, recorded_at, actor, action, entry_kind, entry_id, reason, before_json, after_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.RecordedAt), e.Actor, e.Action, e.Kind, e.EntryID,
		nullString(e.Reason), nullString(string(e.Before)), nullString(string(e.After)))
	return generic.Persistence("append audit", err)
}

func (c *conn) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "entry_kind = ?")
		args = append(args, f.Kind)
	}
	if f.EntryID != "" {
		where = append(where, "entry_id = ?")
		args = append(args, f.EntryID)
	}
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if len(f.Actions) > 0 {
		marks := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			marks[i] = "?"
			args = append(args, a)
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		where = append(where, "recorded_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "recorded_at < ?")
		args = append(args, formatTime(*f.To))
	}

	query := `SELECT id, recorded_at, actor, action, entry_kind, entry_id, reason, before_json, after_json
		FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, generic.Persistence("query audit", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e                     generic.AuditEntry
			recordedAt            string
			reason, before, after sql.NullString
		)
		if err := rows.Scan(&e.ID, &recordedAt, &e.Actor, &e.Action, &e.Kind, &e.EntryID,
			&reason, &before, &after); err != nil {
			return nil, generic.Persistence("scan audit", err)
		}
		e.RecordedAt = parseTime(recordedAt)
		e.Reason = reason.String
		if before.Valid {
			e.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			e.After = json.RawMessage(after.String)
		}
		out = append(out, e)
	}
	return out, generic.Persistence("query audit", rows.Err())
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *generic.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullMemberID(id *generic.MemberID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func memberIDPtr(s sql.NullString) *generic.MemberID {
	if !s.Valid {
		return nil
	}
	id := generic.MemberID(s.String)
	return &id
}

// parseAmount reads a money column. A value that does not parse is an error,
// never zero.
func parseAmount(column, value string) (generic.Amount, error) {
	a, err := generic.ParseAmount(value)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("column %s: %w", column, err)
	}
	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t
}

// isUniqueViolation recognises unique-index failures from either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func isCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}
