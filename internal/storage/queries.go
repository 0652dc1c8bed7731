package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries implements ledger.Queries over a connection or a transaction.
type Queries struct {
	db DBTX
}

var _ ledger.Queries = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const timeLayout = time.RFC3339Nano

type scanner interface {
	Scan(dest ...interface{}) error
}

// Cashboxes

const cashBoxColumns = `id, code, name, currency, opening_balance_cents, kind, active, created_at, updated_at`

func scanCashBox(row scanner) (core.CashBox, error) {
	var (
		c                core.CashBox
		opening          int64
		kind             string
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Currency, &opening, &kind, &c.Active, &created, &updated); err != nil {
		return core.CashBox{}, err
	}
	c.OpeningBalance = core.FromCents(opening)
	c.Kind = core.BoxKind(kind)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

const getCashBox = `SELECT ` + cashBoxColumns + ` FROM cashboxes WHERE id = ?`

func (q *Queries) GetCashBox(ctx context.Context, id int64) (core.CashBox, error) {
	c, err := scanCashBox(q.db.QueryRowContext(ctx, getCashBox, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.CashBox{}, core.NotFound("cashbox", id)
	}
	if err != nil {
		return core.CashBox{}, fmt.Errorf("get cashbox: %w", err)
	}
	return c, nil
}

const getCashBoxByCode = `SELECT ` + cashBoxColumns + ` FROM cashboxes WHERE code = ?`

func (q *Queries) GetCashBoxByCode(ctx context.Context, code string) (core.CashBox, error) {
	c, err := scanCashBox(q.db.QueryRowContext(ctx, getCashBoxByCode, code))
	if errors.Is(err, sql.ErrNoRows) {
		return core.CashBox{}, &core.NotFoundError{Entity: "cashbox", ID: code}
	}
	if err != nil {
		return core.CashBox{}, fmt.Errorf("get cashbox by code: %w", err)
	}
	return c, nil
}

const listCashBoxes = `SELECT ` + cashBoxColumns + ` FROM cashboxes WHERE (? = 0 OR active = 1) ORDER BY code`

func (q *Queries) ListCashBoxes(ctx context.Context, activeOnly bool) ([]core.CashBox, error) {
	rows, err := q.db.QueryContext(ctx, listCashBoxes, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list cashboxes: %w", err)
	}
	defer rows.Close()
	var items []core.CashBox
	for rows.Next() {
		c, err := scanCashBox(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const insertCashBox = `INSERT INTO cashboxes (code, name, currency, opening_balance_cents, kind, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertCashBox(ctx context.Context, c *core.CashBox) error {
	opening, err := core.ToCents(c.OpeningBalance)
	if err != nil {
		return fmt.Errorf("cashbox %s opening balance: %w", c.Code, err)
	}
	res, err := q.db.ExecContext(ctx, insertCashBox,
		c.Code, c.Name, c.Currency, opening, string(c.Kind), c.Active,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return mapWriteError(err, "cashbox", c.Code)
	}
	c.ID, err = res.LastInsertId()
	return err
}

const setCashBoxActive = `UPDATE cashboxes SET active = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetCashBoxActive(ctx context.Context, id int64, active bool) error {
	res, err := q.db.ExecContext(ctx, setCashBoxActive, active, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set cashbox active: %w", err)
	}
	return expectRow(res, core.NotFound("cashbox", id))
}

// Categories and partners

const categoryColumns = `id, code, name, kind, parent_id, active`

func scanCategory(row scanner) (core.Category, error) {
	var (
		c      core.Category
		kind   string
		parent sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &kind, &parent, &c.Active); err != nil {
		return core.Category{}, err
	}
	c.Kind = core.CategoryKind(kind)
	c.ParentID = fromNullInt(parent)
	return c, nil
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories WHERE (? = '' OR kind = ?) ORDER BY code`

func (q *Queries) ListCategories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var items []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) InsertCategory(ctx context.Context, c *core.Category) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO categories (code, name, kind, parent_id, active) VALUES (?, ?, ?, ?, ?)`,
		c.Code, c.Name, string(c.Kind), toNullInt(c.ParentID), c.Active)
	if err != nil {
		return mapWriteError(err, "category", c.Code)
	}
	c.ID, err = res.LastInsertId()
	return err
}

const partnerColumns = `id, code, name, kind, phone, email, notes, active`

func scanPartner(row scanner) (core.Partner, error) {
	var (
		p    core.Partner
		kind string
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &kind, &p.Phone, &p.Email, &p.Notes, &p.Active); err != nil {
		return core.Partner{}, err
	}
	p.Kind = core.PartnerKind(kind)
	return p, nil
}

func (q *Queries) GetPartner(ctx context.Context, id int64) (core.Partner, error) {
	p, err := scanPartner(q.db.QueryRowContext(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Partner{}, core.NotFound("partner", id)
	}
	if err != nil {
		return core.Partner{}, fmt.Errorf("get partner: %w", err)
	}
	return p, nil
}

func (q *Queries) ListPartners(ctx context.Context) ([]core.Partner, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+partnerColumns+` FROM partners ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()
	var items []core.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (q *Queries) InsertPartner(ctx context.Context, p *core.Partner) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO partners (code, name, kind, phone, email, notes, active) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Code, p.Name, string(p.Kind), p.Phone, p.Email, p.Notes, p.Active)
	if err != nil {
		return mapWriteError(err, "partner", p.Code)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// Transactions

const transactionColumns = `id, voucher_no, cashbox_id, kind, status, txn_date, amount_cents, currency, rate,
amount_base_cents, category_id, partner_id, description, reference_no, project_code, cost_center,
linked_txn_id, created_by, approved_by, approved_at, voided_by, voided_at, void_reason, created_at, updated_at`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                        core.Transaction
		kind, status, date, rate string
		amount, amountBase       int64
		category, partner        sql.NullInt64
		linked                   sql.NullString
		approvedBy, voidedBy     sql.NullInt64
		approvedAt, voidedAt     sql.NullString
		created, updated         string
	)
	err := row.Scan(&t.ID, &t.VoucherNo, &t.CashBoxID, &kind, &status, &date, &amount, &t.Currency, &rate,
		&amountBase, &category, &partner, &t.Description, &t.ReferenceNo, &t.ProjectCode, &t.CostCenter,
		&linked, &t.CreatedBy, &approvedBy, &approvedAt, &voidedBy, &voidedAt, &t.VoidReason, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	t.Status = core.Status(status)
	t.Date, err = time.Parse(time.DateOnly, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date of %s: %w", t.ID, err)
	}
	t.Amount = core.FromCents(amount)
	t.AmountBase = core.FromCents(amountBase)
	t.Rate, err = decimal.NewFromString(rate)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse rate of %s: %w", t.ID, err)
	}
	t.CategoryID = fromNullInt(category)
	t.PartnerID = fromNullInt(partner)
	t.LinkedTxnID = linked.String
	t.ApprovedBy = fromNullInt(approvedBy)
	t.ApprovedAt = fromNullTime(approvedAt)
	t.VoidedBy = fromNullInt(voidedBy)
	t.VoidedAt = fromNullTime(voidedAt)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (q *Queries) GetTransactionByVoucher(ctx context.Context, voucherNo string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE voucher_no = ?`, voucherNo))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, &core.NotFoundError{Entity: "voucher", ID: voucherNo}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by voucher: %w", err)
	}
	return t, nil
}

func (q *Queries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.CashBoxID != 0 {
		conds = append(conds, "cashbox_id = ?")
		args = append(args, f.CashBoxID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Range.From.IsZero() {
		conds = append(conds, "txn_date >= ?")
		args = append(args, formatDate(f.Range.From))
	}
	if !f.Range.To.IsZero() {
		conds = append(conds, "txn_date <= ?")
		args = append(args, formatDate(f.Range.To))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY txn_date DESC, created_at DESC, voucher_no DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var items []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const insertTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, t *core.Transaction) error {
	cents, err := centsOf(t.Amount, t.AmountBase)
	if err != nil {
		return fmt.Errorf("transaction %s: %w", t.VoucherNo, err)
	}
	_, err = q.db.ExecContext(ctx, insertTransaction,
		t.ID, t.VoucherNo, t.CashBoxID, string(t.Kind), string(t.Status), formatDate(t.Date),
		cents[0], t.Currency, t.Rate.String(), cents[1],
		toNullInt(t.CategoryID), toNullInt(t.PartnerID), t.Description, t.ReferenceNo, t.ProjectCode, t.CostCenter,
		toNullString(t.LinkedTxnID), t.CreatedBy, toNullInt(t.ApprovedBy), toNullTime(t.ApprovedAt),
		toNullInt(t.VoidedBy), toNullTime(t.VoidedAt), t.VoidReason, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return mapWriteError(err, "transaction", t.VoucherNo)
	}
	return nil
}

// updateTransaction rewrites the mutable columns. Voucher number, cashbox,
// kind and amounts are fixed at insert.
const updateTransaction = `UPDATE transactions SET
status = ?, linked_txn_id = ?, approved_by = ?, approved_at = ?, voided_by = ?, voided_at = ?, void_reason = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		string(t.Status), toNullString(t.LinkedTxnID), toNullInt(t.ApprovedBy), toNullTime(t.ApprovedAt),
		toNullInt(t.VoidedBy), toNullTime(t.VoidedAt), t.VoidReason, formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return mapWriteError(err, "transaction", t.VoucherNo)
	}
	return expectRow(res, &core.NotFoundError{Entity: "transaction", ID: t.ID})
}

const sumApproved = `SELECT kind, COALESCE(SUM(amount_cents), 0) FROM transactions
WHERE cashbox_id = ? AND status = 'approved'
  AND (? = '' OR txn_date >= ?)
  AND (? = '' OR txn_date <= ?)
GROUP BY kind`

func (q *Queries) SumApproved(ctx context.Context, cashboxID int64, r core.DateRange) (core.Flows, error) {
	from, to := "", ""
	if !r.From.IsZero() {
		from = formatDate(r.From)
	}
	if !r.To.IsZero() {
		to = formatDate(r.To)
	}
	rows, err := q.db.QueryContext(ctx, sumApproved, cashboxID, from, from, to, to)
	if err != nil {
		return core.Flows{}, fmt.Errorf("sum approved: %w", err)
	}
	defer rows.Close()
	var flows core.Flows
	for rows.Next() {
		var (
			kind  string
			cents int64
		)
		if err := rows.Scan(&kind, &cents); err != nil {
			return core.Flows{}, err
		}
		flows.Add(core.Kind(kind), core.FromCents(cents))
	}
	return flows, rows.Err()
}

// Vouchers

const maxVoucher = `SELECT voucher_no FROM transactions WHERE voucher_no GLOB ?
ORDER BY length(voucher_no) DESC, voucher_no DESC LIMIT 1`

func (q *Queries) MaxVoucher(ctx context.Context, scope string) (string, error) {
	var voucher string
	err := q.db.QueryRowContext(ctx, maxVoucher, scope+"-[0-9]*").Scan(&voucher)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("max voucher: %w", err)
	}
	return voucher, nil
}

const nextVoucherSeq = `INSERT INTO voucher_sequences (scope, last_seq) VALUES (?, ? + 1)
ON CONFLICT (scope) DO UPDATE SET last_seq = MAX(last_seq, ?) + 1
RETURNING last_seq`

func (q *Queries) NextVoucherSeq(ctx context.Context, scope string, floor int64) (int64, error) {
	var seq int64
	if err := q.db.QueryRowContext(ctx, nextVoucherSeq, scope, floor, floor).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next voucher sequence: %w", err)
	}
	return seq, nil
}

// Period closes

const periodColumns = `id, cashbox_id, year, month, opening_balance_cents, closing_balance_cents,
total_receipts_cents, total_payments_cents, total_transfers_in_cents, total_transfers_out_cents,
closed_by, closed_at, notes`

func (q *Queries) GetPeriodClose(ctx context.Context, cashboxID int64, year, month int) (core.PeriodClose, error) {
	var (
		p                                   core.PeriodClose
		opening, closing, rec, pay, in, out int64
		closedAt                            string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM period_closes WHERE cashbox_id = ? AND year = ? AND month = ?`,
		cashboxID, year, month).
		Scan(&p.ID, &p.CashBoxID, &p.Year, &p.Month, &opening, &closing, &rec, &pay, &in, &out, &p.ClosedBy, &closedAt, &p.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PeriodClose{}, &core.NotFoundError{Entity: "period close", ID: fmt.Sprintf("%d/%04d-%02d", cashboxID, year, month)}
	}
	if err != nil {
		return core.PeriodClose{}, fmt.Errorf("get period close: %w", err)
	}
	p.OpeningBalance = core.FromCents(opening)
	p.ClosingBalance = core.FromCents(closing)
	p.TotalReceipts = core.FromCents(rec)
	p.TotalPayments = core.FromCents(pay)
	p.TotalTransfersIn = core.FromCents(in)
	p.TotalTransfersOut = core.FromCents(out)
	p.ClosedAt = parseTime(closedAt)
	return p, nil
}

func (q *Queries) InsertPeriodClose(ctx context.Context, p *core.PeriodClose) error {
	cents, err := centsOf(p.OpeningBalance, p.ClosingBalance, p.TotalReceipts, p.TotalPayments,
		p.TotalTransfersIn, p.TotalTransfersOut)
	if err != nil {
		return fmt.Errorf("period close %04d-%02d: %w", p.Year, p.Month, err)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO period_closes (cashbox_id, year, month, opening_balance_cents, closing_balance_cents,
total_receipts_cents, total_payments_cents, total_transfers_in_cents, total_transfers_out_cents,
closed_by, closed_at, notes) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.CashBoxID, p.Year, p.Month, cents[0], cents[1],
		cents[2], cents[3], cents[4],
		cents[5], p.ClosedBy, formatTime(p.ClosedAt), p.Notes)
	if err != nil {
		return mapWriteError(err, "period close", fmt.Sprintf("%04d-%02d", p.Year, p.Month))
	}
	p.ID, err = res.LastInsertId()
	return err
}

// mapWriteError turns constraint violations into validation errors so the
// ledger can report them like any other bad input.
func mapWriteError(err error, entity, key string) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return &core.ValidationError{Field: "code", Reason: fmt.Sprintf("%s %s already exists", entity, key), Err: err}
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return &core.ValidationError{Field: entity, Reason: "references an unknown row", Err: err}
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return &core.ValidationError{Field: entity, Reason: "violates a check constraint", Err: err}
		}
	}
	return fmt.Errorf("write %s: %w", entity, err)
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// centsOf converts amounts to cents, failing on the first one out of range.
func centsOf(amounts ...decimal.Decimal) ([]int64, error) {
	out := make([]int64, len(amounts))
	for i, a := range amounts {
		c, err := core.ToCents(a)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func toNullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func fromNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}
