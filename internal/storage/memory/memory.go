// Package memory is an in-process ledger.Store used for tests and for the
// memory data backend. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

type periodKey struct {
	cashboxID   int64
	year, month int
}

type state struct {
	boxes      map[int64]core.CashBox
	categories map[int64]core.Category
	partners   map[int64]core.Partner
	txns       map[string]core.Transaction
	vouchers   map[string]string // voucher_no -> transaction id
	sequences  map[string]int64
	periods    map[periodKey]core.PeriodClose
	lastID     int64
}

func newState() *state {
	return &state{
		boxes:      map[int64]core.CashBox{},
		categories: map[int64]core.Category{},
		partners:   map[int64]core.Partner{},
		txns:       map[string]core.Transaction{},
		vouchers:   map[string]string{},
		sequences:  map[string]int64{},
		periods:    map[periodKey]core.PeriodClose{},
	}
}

func (s *state) clone() *state {
	c := &state{
		boxes:      make(map[int64]core.CashBox, len(s.boxes)),
		categories: make(map[int64]core.Category, len(s.categories)),
		partners:   make(map[int64]core.Partner, len(s.partners)),
		txns:       make(map[string]core.Transaction, len(s.txns)),
		vouchers:   make(map[string]string, len(s.vouchers)),
		sequences:  make(map[string]int64, len(s.sequences)),
		periods:    make(map[periodKey]core.PeriodClose, len(s.periods)),
		lastID:     s.lastID,
	}
	for k, v := range s.boxes {
		c.boxes[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.partners {
		c.partners[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	return c
}

// Store keeps committed state behind a mutex. Transactions work on a
// private copy that replaces the committed state on success, so readers
// never observe a half-applied change.
type Store struct {
	writer sync.Mutex // serializes WithTx
	mu     sync.RWMutex
	st     *state
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(q ledger.Queries) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

// Reads go to the committed state. A committed state is never mutated, only
// replaced, so the snapshot returned by read is safe without holding mu.

func (s *Store) GetCashBox(ctx context.Context, id int64) (core.CashBox, error) {
	return s.read().GetCashBox(ctx, id)
}

func (s *Store) GetCashBoxByCode(ctx context.Context, code string) (core.CashBox, error) {
	return s.read().GetCashBoxByCode(ctx, code)
}

func (s *Store) ListCashBoxes(ctx context.Context, activeOnly bool) ([]core.CashBox, error) {
	return s.read().ListCashBoxes(ctx, activeOnly)
}

func (s *Store) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	return s.read().GetCategory(ctx, id)
}

func (s *Store) ListCategories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error) {
	return s.read().ListCategories(ctx, kind)
}

func (s *Store) GetPartner(ctx context.Context, id int64) (core.Partner, error) {
	return s.read().GetPartner(ctx, id)
}

func (s *Store) ListPartners(ctx context.Context) ([]core.Partner, error) {
	return s.read().ListPartners(ctx)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.read().GetTransaction(ctx, id)
}

func (s *Store) GetTransactionByVoucher(ctx context.Context, voucherNo string) (core.Transaction, error) {
	return s.read().GetTransactionByVoucher(ctx, voucherNo)
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return s.read().ListTransactions(ctx, f)
}

func (s *Store) SumApproved(ctx context.Context, cashboxID int64, r core.DateRange) (core.Flows, error) {
	return s.read().SumApproved(ctx, cashboxID, r)
}

func (s *Store) MaxVoucher(ctx context.Context, scope string) (string, error) {
	return s.read().MaxVoucher(ctx, scope)
}

func (s *Store) GetPeriodClose(ctx context.Context, cashboxID int64, year, month int) (core.PeriodClose, error) {
	return s.read().GetPeriodClose(ctx, cashboxID, year, month)
}

// Writes outside WithTx run as their own single-statement transaction.

func (s *Store) InsertCashBox(ctx context.Context, c *core.CashBox) error {
	return s.WithTx(ctx, func(q ledger.Queries) error { return q.InsertCashBox(ctx, c) })
}

func (s *Store) SetCashBoxActive(ctx context.Context, id int64, active bool) error {
	return s.WithTx(ctx, func(q ledger.Queries) error { return q.SetCashBoxActive(ctx, id, active) })
}

func (s *Store) InsertCategory(ctx context.Context, c *core.Category) error {
	return s.WithTx(ctx, func(q ledger.Queries) error { return q.InsertCategory(ctx, c) })
}

func (s *Store) InsertPartner(ctx context.Context, p *core.Partner) error {
	return s.WithTx(ctx, func(q ledger.Queries) error { return q.InsertPartner(ctx, p) })
}

func (s *Store) InsertTransaction(ctx context.Context, t *core.Transaction) error {
	return s.WithTx(ctx, func(q ledger.Queries) error { return q.InsertTransaction(ctx, t) })
}

func (s *Store) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	return s.WithTx(ctx, func(q ledger.Queries) error { return q.UpdateTransaction(ctx, t) })
}

func (s *Store) NextVoucherSeq(ctx context.Context, scope string, floor int64) (int64, error) {
	var seq int64
	err := s.WithTx(ctx, func(q ledger.Queries) error {
		var err error
		seq, err = q.NextVoucherSeq(ctx, scope, floor)
		return err
	})
	return seq, err
}

func (s *Store) InsertPeriodClose(ctx context.Context, p *core.PeriodClose) error {
	return s.WithTx(ctx, func(q ledger.Queries) error { return q.InsertPeriodClose(ctx, p) })
}

// state implements ledger.Queries without locking; the Store decides which
// copy it operates on.

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *state) GetCashBox(_ context.Context, id int64) (core.CashBox, error) {
	c, ok := s.boxes[id]
	if !ok {
		return core.CashBox{}, core.NotFound("cashbox", id)
	}
	return c, nil
}

func (s *state) GetCashBoxByCode(_ context.Context, code string) (core.CashBox, error) {
	for _, c := range s.boxes {
		if c.Code == code {
			return c, nil
		}
	}
	return core.CashBox{}, &core.NotFoundError{Entity: "cashbox", ID: code}
}

func (s *state) ListCashBoxes(_ context.Context, activeOnly bool) ([]core.CashBox, error) {
	out := make([]core.CashBox, 0, len(s.boxes))
	for _, c := range s.boxes {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b core.CashBox) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *state) InsertCashBox(_ context.Context, c *core.CashBox) error {
	for _, existing := range s.boxes {
		if existing.Code == c.Code {
			return duplicate("code", "cashbox", c.Code)
		}
	}
	c.ID = s.nextID()
	s.boxes[c.ID] = *c
	return nil
}

func (s *state) SetCashBoxActive(_ context.Context, id int64, active bool) error {
	c, ok := s.boxes[id]
	if !ok {
		return core.NotFound("cashbox", id)
	}
	c.Active = active
	s.boxes[id] = c
	return nil
}

func (s *state) GetCategory(_ context.Context, id int64) (core.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (s *state) ListCategories(_ context.Context, kind core.CategoryKind) ([]core.Category, error) {
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b core.Category) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *state) InsertCategory(_ context.Context, c *core.Category) error {
	for _, existing := range s.categories {
		if existing.Code == c.Code {
			return duplicate("code", "category", c.Code)
		}
	}
	c.ID = s.nextID()
	s.categories[c.ID] = *c
	return nil
}

func (s *state) GetPartner(_ context.Context, id int64) (core.Partner, error) {
	p, ok := s.partners[id]
	if !ok {
		return core.Partner{}, core.NotFound("partner", id)
	}
	return p, nil
}

func (s *state) ListPartners(_ context.Context) ([]core.Partner, error) {
	out := make([]core.Partner, 0, len(s.partners))
	for _, p := range s.partners {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b core.Partner) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *state) InsertPartner(_ context.Context, p *core.Partner) error {
	for _, existing := range s.partners {
		if existing.Code == p.Code {
			return duplicate("code", "partner", p.Code)
		}
	}
	p.ID = s.nextID()
	s.partners[p.ID] = *p
	return nil
}

func (s *state) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	t, ok := s.txns[id]
	if !ok {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	return t, nil
}

func (s *state) GetTransactionByVoucher(ctx context.Context, voucherNo string) (core.Transaction, error) {
	id, ok := s.vouchers[voucherNo]
	if !ok {
		return core.Transaction{}, &core.NotFoundError{Entity: "voucher", ID: voucherNo}
	}
	return s.GetTransaction(ctx, id)
}

func (s *state) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range s.txns {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.VoucherNo, a.VoucherNo)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *state) InsertTransaction(_ context.Context, t *core.Transaction) error {
	if _, ok := s.txns[t.ID]; ok {
		return duplicate("id", "transaction", t.ID)
	}
	if _, ok := s.vouchers[t.VoucherNo]; ok {
		return duplicate("voucher_no", "transaction", t.VoucherNo)
	}
	if _, ok := s.boxes[t.CashBoxID]; !ok {
		return core.NotFound("cashbox", t.CashBoxID)
	}
	s.txns[t.ID] = *t
	s.vouchers[t.VoucherNo] = t.ID
	return nil
}

func (s *state) UpdateTransaction(_ context.Context, t *core.Transaction) error {
	old, ok := s.txns[t.ID]
	if !ok {
		return &core.NotFoundError{Entity: "transaction", ID: t.ID}
	}
	if old.VoucherNo != t.VoucherNo {
		return &core.ValidationError{Field: "voucher_no", Reason: "cannot be changed"}
	}
	if t.LinkedTxnID != "" {
		if _, ok := s.txns[t.LinkedTxnID]; !ok {
			return &core.NotFoundError{Entity: "transaction", ID: t.LinkedTxnID}
		}
	}
	s.txns[t.ID] = *t
	return nil
}

func (s *state) SumApproved(_ context.Context, cashboxID int64, r core.DateRange) (core.Flows, error) {
	var f core.Flows
	for _, t := range s.txns {
		if t.CashBoxID != cashboxID || t.Status != core.StatusApproved || !r.Contains(t.Date) {
			continue
		}
		f.Add(t.Kind, t.Amount)
	}
	return f, nil
}

func (s *state) MaxVoucher(_ context.Context, scope string) (string, error) {
	prefix := scope + "-"
	best := ""
	for v := range s.vouchers {
		rest, ok := strings.CutPrefix(v, prefix)
		if !ok || !allDigits(rest) {
			continue
		}
		if len(v) > len(best) || (len(v) == len(best) && v > best) {
			best = v
		}
	}
	return best, nil
}

func (s *state) NextVoucherSeq(_ context.Context, scope string, floor int64) (int64, error) {
	seq := max(s.sequences[scope], floor) + 1
	s.sequences[scope] = seq
	return seq, nil
}

func (s *state) GetPeriodClose(_ context.Context, cashboxID int64, year, month int) (core.PeriodClose, error) {
	p, ok := s.periods[periodKey{cashboxID, year, month}]
	if !ok {
		return core.PeriodClose{}, &core.NotFoundError{Entity: "period close", ID: fmt.Sprintf("%d/%04d-%02d", cashboxID, year, month)}
	}
	return p, nil
}

func (s *state) InsertPeriodClose(_ context.Context, p *core.PeriodClose) error {
	key := periodKey{p.CashBoxID, p.Year, p.Month}
	if _, ok := s.periods[key]; ok {
		return duplicate("period", "period close", fmt.Sprintf("%04d-%02d", p.Year, p.Month))
	}
	if _, ok := s.boxes[p.CashBoxID]; !ok {
		return core.NotFound("cashbox", p.CashBoxID)
	}
	p.ID = s.nextID()
	s.periods[key] = *p
	return nil
}

func duplicate(field, entity, value string) error {
	return &core.ValidationError{Field: field, Reason: fmt.Sprintf("%s %s already exists", entity, value)}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
