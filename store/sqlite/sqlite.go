/*
Package sqlite provides a SQLite-backed implementation of the ledger storage
interfaces.

PURPOSE:
  Implements ledger.InvoiceStore, ledger.PaymentStore and ledger.ConfigStore
  using SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  invoices:            billing documents (originals and accrual charges)
  invoice_lines:       line items
  payments:            settlements
  payment_allocations: payment-to-invoice applications
  company_config:      per-company finance-charge settings
  invoice_seq:         the primary numbering sequence (per year)

CHARGE-PERIOD GUARD:
  idx_unique_charge_period enforces at most one non-cancelled charge per
  parent invoice per calendar month of its issue date. Overlapping engine
  runs both pass the eligibility re-check; the index makes sure only one of
  them lands a given month, surfaced as ErrDuplicateChargePeriod.

NUMBERING:
  Only originals draw from invoice_seq. Accrual charges arrive pre-numbered
  (<parent>/APR/NNN), so generated charges never perturb the primary
  invoice numbering sequence.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/finance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: interface definitions and contracts
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/clearbook/finance-engine/ledger"
)

// Store implements the ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset drops all stored data, including company settings and the numbering
// sequence. Dev-only; nothing in the engine calls it.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{
		"payment_allocations", "payments", "invoice_lines",
		"invoices", "company_config", "invoice_seq",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		company_id TEXT NOT NULL,
		partner_id TEXT,
		currency TEXT NOT NULL,
		direction TEXT NOT NULL,
		refund INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		payment_state TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		due_date TEXT,
		total TEXT NOT NULL,
		residual TEXT NOT NULL,
		parent_id TEXT REFERENCES invoices(id) ON DELETE SET NULL,
		early_payment_discount TEXT,
		early_payment_deadline TEXT,
		memo TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_parent
		ON invoices(parent_id) WHERE parent_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_invoices_selection
		ON invoices(direction, state, payment_state)
		WHERE parent_id IS NULL;

	-- CRITICAL: one non-cancelled charge per chain per calendar month.
	-- This is the mutual-exclusion guard against overlapping engine runs.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_charge_period
		ON invoices(parent_id, strftime('%Y-%m', issue_date))
		WHERE parent_id IS NOT NULL AND state != 'cancelled';

	CREATE TABLE IF NOT EXISTS invoice_lines (
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		seq INTEGER NOT NULL,
		product_id TEXT,
		account_id TEXT,
		description TEXT,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		PRIMARY KEY (invoice_id, seq)
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		partner_id TEXT,
		date TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		memo TEXT
	);

	CREATE TABLE IF NOT EXISTS payment_allocations (
		payment_id TEXT NOT NULL REFERENCES payments(id),
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		amount TEXT NOT NULL,
		PRIMARY KEY (payment_id, invoice_id)
	);

	CREATE TABLE IF NOT EXISTS company_config (
		company_id TEXT PRIMARY KEY,
		payment_term_days INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		product_income_account_id TEXT,
		fallback_account_id TEXT,
		charge_description TEXT,
		annual_rate TEXT,
		multi_stub INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS invoice_seq (
		year INTEGER PRIMARY KEY,
		n INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (s *Store) CreateInvoice(ctx context.Context, inv *ledger.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cp := *inv
	if cp.Residual.IsZero() && !cp.Total.IsZero() && cp.PaymentState != ledger.PaymentPaid {
		cp.Residual = cp.Total
	}

	if cp.ParentID == nil && cp.Number == "" {
		number, err := nextNumber(ctx, tx, cp.IssueDate.Year())
		if err != nil {
			return err
		}
		cp.Number = number
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, number, company_id, partner_id, currency,
			direction, refund, state, payment_state, issue_date, due_date,
			total, residual, parent_id, early_payment_discount,
			early_payment_deadline, memo, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(cp.ID), cp.Number, string(cp.CompanyID), nullPartnerID(cp.PartnerID),
		cp.Currency, string(cp.Direction), boolInt(cp.Refund), string(cp.State),
		string(cp.PaymentState), cp.IssueDate.String(), nullDate(cp.DueDate),
		cp.Total.String(), cp.Residual.String(), nullInvoiceID(cp.ParentID),
		cp.EarlyPaymentDiscount.String(), nullDatePtr(cp.EarlyPaymentDeadline),
		cp.Memo, ledger.Today().String())
	if err != nil {
		if strings.Contains(err.Error(), "idx_unique_charge_period") {
			return ledger.ErrDuplicateChargePeriod
		}
		return err
	}

	for i, line := range cp.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_lines (invoice_id, seq, product_id, account_id,
				description, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(cp.ID), i, line.ProductID, line.AccountID, line.Description,
			line.Quantity.String(), line.UnitPrice.String())
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	inv.Number = cp.Number
	inv.Residual = cp.Residual
	return nil
}

// nextNumber advances the primary sequence for the given year. Runs inside
// the invoice-creation transaction so a rollback releases the number.
func nextNumber(ctx context.Context, tx *sql.Tx, year int) (string, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO invoice_seq (year, n) VALUES (?, 1)
		ON CONFLICT(year) DO UPDATE SET n = n + 1`, year)
	if err != nil {
		return "", err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT n FROM invoice_seq WHERE year = ?`, year).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV/%d/%04d", year, n), nil
}

func (s *Store) PostInvoice(ctx context.Context, id ledger.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET state = ? WHERE id = ?`,
		string(ledger.StatePosted), string(id))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	invoices, err := s.queryInvoices(ctx, selectInvoiceSQL+` WHERE i.id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ledger.ErrInvoiceNotFound
	}
	inv := invoices[0]
	if err := s.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Store) SelectInvoices(ctx context.Context, f ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	var conds []string
	var args []any

	if f.Direction != nil {
		conds = append(conds, "i.direction = ?")
		args = append(args, string(*f.Direction))
	}
	if f.State != nil {
		conds = append(conds, "i.state = ?")
		args = append(args, string(*f.State))
	}
	if len(f.PaymentStates) > 0 {
		placeholders := make([]string, len(f.PaymentStates))
		for i, ps := range f.PaymentStates {
			placeholders[i] = "?"
			args = append(args, string(ps))
		}
		conds = append(conds, fmt.Sprintf("i.payment_state IN (%s)", strings.Join(placeholders, ", ")))
	}
	if f.OriginalsOnly {
		conds = append(conds, "i.parent_id IS NULL")
	}
	if f.DueBefore != nil {
		// Derived latest-charge due date: the max due date over the
		// non-cancelled charges, falling back to the invoice's own.
		conds = append(conds, `(
			SELECT COALESCE(MAX(c.due_date), i.due_date)
			FROM invoices c
			WHERE c.parent_id = i.id AND c.state != 'cancelled'
		) < ?`)
		args = append(args, f.DueBefore.String())
	}

	query := selectInvoiceSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY i.due_date, i.id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryInvoices(ctx, query, args...)
}

func (s *Store) ChargesOf(ctx context.Context, id ledger.InvoiceID) ([]*ledger.Invoice, error) {
	if _, err := s.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	return s.queryInvoices(ctx,
		selectInvoiceSQL+` WHERE i.parent_id = ? ORDER BY i.due_date, i.id`,
		string(id))
}

const selectInvoiceSQL = `
	SELECT i.id, i.number, i.company_id, i.partner_id, i.currency, i.direction,
		i.refund, i.state, i.payment_state, i.issue_date, i.due_date, i.total,
		i.residual, i.parent_id, i.early_payment_discount,
		i.early_payment_deadline, i.memo, i.created_at
	FROM invoices i`

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]*ledger.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ledger.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func scanInvoice(rows *sql.Rows) (*ledger.Invoice, error) {
	var (
		inv                  ledger.Invoice
		id, companyID        string
		direction, state     string
		paymentState         string
		refund               int
		issueDate, createdAt string
		partnerID            sql.NullString
		dueDate, parentID    sql.NullString
		discount             sql.NullString
		deadline, memo       sql.NullString
		total, residual      string
	)
	err := rows.Scan(&id, &inv.Number, &companyID, &partnerID, &inv.Currency,
		&direction, &refund, &state, &paymentState, &issueDate, &dueDate,
		&total, &residual, &parentID, &discount, &deadline, &memo, &createdAt)
	if err != nil {
		return nil, err
	}

	inv.ID = ledger.InvoiceID(id)
	inv.CompanyID = ledger.CompanyID(companyID)
	inv.PartnerID = ledger.PartnerID(partnerID.String)
	inv.Direction = ledger.Direction(direction)
	inv.Refund = refund != 0
	inv.State = ledger.PostingState(state)
	inv.PaymentState = ledger.PaymentState(paymentState)

	if inv.IssueDate, err = ledger.ParseDate(issueDate); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		if inv.DueDate, err = ledger.ParseDate(dueDate.String); err != nil {
			return nil, err
		}
	}
	if inv.CreatedAt, err = ledger.ParseDate(createdAt); err != nil {
		return nil, err
	}
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if inv.Residual, err = decimal.NewFromString(residual); err != nil {
		return nil, err
	}
	if parentID.Valid {
		pid := ledger.InvoiceID(parentID.String)
		inv.ParentID = &pid
	}
	if discount.Valid && discount.String != "" {
		if inv.EarlyPaymentDiscount, err = decimal.NewFromString(discount.String); err != nil {
			return nil, err
		}
	}
	if deadline.Valid && deadline.String != "" {
		d, err := ledger.ParseDate(deadline.String)
		if err != nil {
			return nil, err
		}
		inv.EarlyPaymentDeadline = &d
	}
	if memo.Valid {
		inv.Memo = memo.String
	}
	return &inv, nil
}

func (s *Store) loadLines(ctx context.Context, inv *ledger.Invoice) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, account_id, description, quantity, unit_price
		FROM invoice_lines WHERE invoice_id = ? ORDER BY seq`, string(inv.ID))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var line ledger.LineItem
		var quantity, unitPrice string
		if err := rows.Scan(&line.ProductID, &line.AccountID, &line.Description, &quantity, &unitPrice); err != nil {
			return err
		}
		if line.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return err
		}
		if line.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return rows.Err()
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (s *Store) RecordPayment(ctx context.Context, p *ledger.Payment, allocs []ledger.PaymentAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, company_id, partner_id, date, currency, amount, memo)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), string(p.CompanyID), nullPartnerID(p.PartnerID), p.Date.String(),
		p.Currency, p.Amount.String(), p.Memo)
	if err != nil {
		return err
	}

	for _, a := range allocs {
		var residual string
		err := tx.QueryRowContext(ctx,
			`SELECT residual FROM invoices WHERE id = ?`, string(a.InvoiceID)).Scan(&residual)
		if err == sql.ErrNoRows {
			return ledger.ErrInvoiceNotFound
		}
		if err != nil {
			return err
		}
		current, err := decimal.NewFromString(residual)
		if err != nil {
			return err
		}

		remaining := current.Sub(a.Amount)
		paymentState := ledger.PaymentPartial
		if remaining.Sign() <= 0 {
			remaining = decimal.Zero
			paymentState = ledger.PaymentPaid
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE invoices SET residual = ?, payment_state = ? WHERE id = ?`,
			remaining.String(), string(paymentState), string(a.InvoiceID))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_allocations (payment_id, invoice_id, amount)
			VALUES (?, ?, ?)`,
			string(p.ID), string(a.InvoiceID), a.Amount.String())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	var (
		p               ledger.Payment
		pid             string
		companyID       string
		partnerID, memo sql.NullString
		date, amount    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, partner_id, date, currency, amount, memo
		FROM payments WHERE id = ?`, string(id)).
		Scan(&pid, &companyID, &partnerID, &date, &p.Currency, &amount, &memo)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ID = ledger.PaymentID(pid)
	p.CompanyID = ledger.CompanyID(companyID)
	p.PartnerID = ledger.PartnerID(partnerID.String)
	if p.Date, err = ledger.ParseDate(date); err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if memo.Valid {
		p.Memo = memo.String
	}
	return &p, nil
}

func (s *Store) AllocationsOf(ctx context.Context, id ledger.PaymentID) ([]ledger.PaymentAllocation, error) {
	if _, err := s.GetPayment(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_id, invoice_id, amount
		FROM payment_allocations WHERE payment_id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.PaymentAllocation
	for rows.Next() {
		var a ledger.PaymentAllocation
		var pid, iid, amount string
		if err := rows.Scan(&pid, &iid, &amount); err != nil {
			return nil, err
		}
		a.PaymentID = ledger.PaymentID(pid)
		a.InvoiceID = ledger.InvoiceID(iid)
		if a.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// CONFIG STORE
// =============================================================================

func (s *Store) GetCompanyConfig(ctx context.Context, id ledger.CompanyID) (*ledger.CompanyConfig, error) {
	var (
		cfg           ledger.CompanyConfig
		companyID     string
		productIncome sql.NullString
		fallback      sql.NullString
		description   sql.NullString
		annualRate    sql.NullString
		multiStub     int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT company_id, payment_term_days, product_id,
			product_income_account_id, fallback_account_id,
			charge_description, annual_rate, multi_stub
		FROM company_config WHERE company_id = ?`, string(id)).
		Scan(&companyID, &cfg.PaymentTermDays, &cfg.ProductID,
			&productIncome, &fallback, &description, &annualRate, &multiStub)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrCompanyConfigNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.CompanyID = ledger.CompanyID(companyID)
	cfg.ProductIncomeAccountID = productIncome.String
	cfg.FallbackAccountID = fallback.String
	cfg.ChargeDescription = description.String
	cfg.MultiStub = multiStub != 0
	if annualRate.Valid && annualRate.String != "" {
		if cfg.AnnualRate, err = decimal.NewFromString(annualRate.String); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (s *Store) PutCompanyConfig(ctx context.Context, cfg *ledger.CompanyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_config (company_id, payment_term_days, product_id,
			product_income_account_id, fallback_account_id, charge_description,
			annual_rate, multi_stub)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			payment_term_days = excluded.payment_term_days,
			product_id = excluded.product_id,
			product_income_account_id = excluded.product_income_account_id,
			fallback_account_id = excluded.fallback_account_id,
			charge_description = excluded.charge_description,
			annual_rate = excluded.annual_rate,
			multi_stub = excluded.multi_stub`,
		string(cfg.CompanyID), cfg.PaymentTermDays, cfg.ProductID,
		cfg.ProductIncomeAccountID, cfg.FallbackAccountID,
		cfg.ChargeDescription, cfg.AnnualRate.String(), boolInt(cfg.MultiStub))
	return err
}

func (s *Store) ListCompanyConfigs(ctx context.Context) ([]*ledger.CompanyConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id FROM company_config ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []ledger.CompanyID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ledger.CompanyID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*ledger.CompanyConfig, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetCompanyConfig(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullDate(d ledger.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullDatePtr(d *ledger.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullInvoiceID(id *ledger.InvoiceID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullPartnerID(id ledger.PartnerID) any {
	if id == "" {
		return nil
	}
	return string(id)
}
