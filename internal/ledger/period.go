package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

// ClosePeriod records the month as closed for a cashbox, with the opening
// balance at the first day, the month's approved totals and the closing
// balance. The ledger itself keeps accepting drafts for closed periods;
// callers that need enforcement check IsPeriodClosed first.
func (l *Ledger) ClosePeriod(ctx context.Context, actor core.Actor, cashboxID int64, year, month int, notes string) (core.PeriodClose, error) {
	if err := actor.Require(core.PermClosePeriod); err != nil {
		return core.PeriodClose{}, err
	}
	if month < 1 || month > 12 {
		return core.PeriodClose{}, &core.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	if year < 1900 || year > 9999 {
		return core.PeriodClose{}, &core.ValidationError{Field: "year", Reason: "out of range"}
	}

	var pc core.PeriodClose
	err := l.inTx(ctx, func(q Queries, events *[]core.AuditEvent) error {
		box, err := q.GetCashBox(ctx, cashboxID)
		if err != nil {
			return err
		}
		if _, err := q.GetPeriodClose(ctx, box.ID, year, month); err == nil {
			return &core.ValidationError{Field: "period", Reason: fmt.Sprintf("%04d-%02d already closed for %s", year, month, box.Code)}
		} else if !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("load period close: %w", err)
		}

		period := core.MonthRange(year, month)
		before, err := q.SumApproved(ctx, box.ID, core.DateRange{To: period.From.AddDate(0, 0, -1)})
		if err != nil {
			return fmt.Errorf("sum before period: %w", err)
		}
		within, err := q.SumApproved(ctx, box.ID, period)
		if err != nil {
			return fmt.Errorf("sum within period: %w", err)
		}

		opening := box.OpeningBalance.Add(before.Net())
		pc = core.PeriodClose{
			CashBoxID:         box.ID,
			Year:              year,
			Month:             month,
			OpeningBalance:    opening,
			ClosingBalance:    opening.Add(within.Net()),
			TotalReceipts:     within.Receipts,
			TotalPayments:     within.Payments,
			TotalTransfersIn:  within.TransfersIn,
			TotalTransfersOut: within.TransfersOut,
			ClosedBy:          actor.ID,
			ClosedAt:          l.now().UTC(),
			Notes:             strings.TrimSpace(notes),
		}
		if err := q.InsertPeriodClose(ctx, &pc); err != nil {
			return fmt.Errorf("insert period close: %w", err)
		}
		*events = append(*events, core.AuditEvent{
			Action:    core.AuditClosePeriod,
			CashBoxID: box.ID,
			Actor:     actor.ID,
			Reason:    fmt.Sprintf("%04d-%02d", year, month),
			At:        pc.ClosedAt,
		})
		return nil
	})
	if err != nil {
		return core.PeriodClose{}, err
	}

	l.logger.InfoContext(ctx, "Period closed",
		applog.FieldOperation, applog.OpClosePeriod,
		applog.FieldActor, actor.ID,
		applog.FieldCashBox, cashboxID,
		applog.FieldYear, year,
		applog.FieldMonth, month)
	return pc, nil
}

// IsPeriodClosed reports whether the month containing date is closed for
// the cashbox.
func (l *Ledger) IsPeriodClosed(ctx context.Context, cashboxID int64, date time.Time) (bool, error) {
	_, err := l.store.GetPeriodClose(ctx, cashboxID, date.Year(), int(date.Month()))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("load period close: %w", err)
}
