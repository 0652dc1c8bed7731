package ledger

import (
	"context"

	"cashbook/internal/core"
)

// Ports for the persistence collaborator. Lookups of unknown ids return a
// *core.NotFoundError; inserts that violate a unique code return a
// *core.ValidationError.
type (
	CashBoxQueries interface {
		GetCashBox(ctx context.Context, id int64) (core.CashBox, error)
		GetCashBoxByCode(ctx context.Context, code string) (core.CashBox, error)
		ListCashBoxes(ctx context.Context, activeOnly bool) ([]core.CashBox, error)
		InsertCashBox(ctx context.Context, c *core.CashBox) error
		SetCashBoxActive(ctx context.Context, id int64, active bool) error
	}

	ReferenceQueries interface {
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		// ListCategories returns categories of the given kind, or all when kind is empty.
		ListCategories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error)
		InsertCategory(ctx context.Context, c *core.Category) error

		GetPartner(ctx context.Context, id int64) (core.Partner, error)
		ListPartners(ctx context.Context) ([]core.Partner, error)
		InsertPartner(ctx context.Context, p *core.Partner) error
	}

	TransactionQueries interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		GetTransactionByVoucher(ctx context.Context, voucherNo string) (core.Transaction, error)
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
		InsertTransaction(ctx context.Context, t *core.Transaction) error
		UpdateTransaction(ctx context.Context, t *core.Transaction) error

		// SumApproved totals approved transactions of a cashbox per kind
		// within r. A zero range covers the full history.
		SumApproved(ctx context.Context, cashboxID int64, r core.DateRange) (core.Flows, error)
	}

	VoucherQueries interface {
		// MaxVoucher returns the highest voucher number "<scope>-<digits>",
		// or "" when the scope has none.
		MaxVoucher(ctx context.Context, scope string) (string, error)
		// NextVoucherSeq atomically allocates the next sequence for scope.
		// The result is greater than both floor and any sequence previously
		// allocated for the scope.
		NextVoucherSeq(ctx context.Context, scope string, floor int64) (int64, error)
	}

	PeriodQueries interface {
		GetPeriodClose(ctx context.Context, cashboxID int64, year, month int) (core.PeriodClose, error)
		InsertPeriodClose(ctx context.Context, p *core.PeriodClose) error
	}

	Queries interface {
		CashBoxQueries
		ReferenceQueries
		TransactionQueries
		VoucherQueries
		PeriodQueries
	}

	// Store runs queries directly or inside a single atomic unit. WithTx
	// commits when fn returns nil and rolls back otherwise; writes made
	// inside fn are not visible to other readers before commit.
	Store interface {
		Queries
		WithTx(ctx context.Context, fn func(q Queries) error) error
	}
)

// TransactionFilter narrows ListTransactions. Zero fields match everything.
type TransactionFilter struct {
	CashBoxID int64
	Status    core.Status
	Kind      core.Kind
	Range     core.DateRange
	Limit     int
}

// Matches reports whether t passes the filter (Limit is not considered).
func (f TransactionFilter) Matches(t core.Transaction) bool {
	if f.CashBoxID != 0 && t.CashBoxID != f.CashBoxID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	return f.Range.Contains(t.Date)
}
