package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cashbook/internal/core"
)

// Balance derives the current balance of a cashbox from its opening balance
// and every approved transaction. It is recomputed on each call and takes
// no locks; a result may be stale by the time a later write runs.
func (l *Ledger) Balance(ctx context.Context, cashboxID int64) (decimal.Decimal, error) {
	return balanceOf(ctx, l.store, cashboxID)
}

// Summary returns approved totals per kind for a cashbox within r.
func (l *Ledger) Summary(ctx context.Context, cashboxID int64, r core.DateRange) (core.Flows, error) {
	if _, err := l.store.GetCashBox(ctx, cashboxID); err != nil {
		return core.Flows{}, err
	}
	flows, err := l.store.SumApproved(ctx, cashboxID, r)
	if err != nil {
		return core.Flows{}, fmt.Errorf("sum approved transactions: %w", err)
	}
	return flows, nil
}

func balanceOf(ctx context.Context, q Queries, cashboxID int64) (decimal.Decimal, error) {
	box, err := q.GetCashBox(ctx, cashboxID)
	if err != nil {
		return decimal.Zero, err
	}
	return boxBalance(ctx, q, box)
}

func boxBalance(ctx context.Context, q Queries, box core.CashBox) (decimal.Decimal, error) {
	flows, err := q.SumApproved(ctx, box.ID, core.DateRange{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum approved transactions: %w", err)
	}
	return box.OpeningBalance.Add(flows.Net()), nil
}

// requireFunds fails with InsufficientFundsError unless the cashbox balance,
// read through q, covers amount.
func requireFunds(ctx context.Context, q Queries, box core.CashBox, amount decimal.Decimal) error {
	balance, err := boxBalance(ctx, q, box)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return &core.InsufficientFundsError{CashBoxCode: box.Code, Balance: balance, Amount: amount}
	}
	return nil
}
