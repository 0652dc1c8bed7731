package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

// TransferRequest moves Amount from one cashbox to another. The pair is
// left as linked drafts unless Approve is set.
type TransferRequest struct {
	From        int64
	To          int64
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	Approve     bool
}

func (r TransferRequest) validate() error {
	if r.From == r.To {
		return &core.ValidationError{Field: "to", Reason: "source and destination cashbox must differ"}
	}
	if err := core.ValidateAmount(r.Amount); err != nil {
		return err
	}
	if len(r.Description) > core.MaxDescriptionLen {
		return &core.ValidationError{Field: "description", Reason: fmt.Sprintf("too long (max %d characters)", core.MaxDescriptionLen)}
	}
	return nil
}

// CreateTransfer creates a transfer_out on the source cashbox and a
// transfer_in on the destination, linked to each other. Both legs, the link
// and the optional approval commit together or not at all.
func (l *Ledger) CreateTransfer(ctx context.Context, actor core.Actor, req TransferRequest) (out, in core.Transaction, err error) {
	need := core.PermCreateDraft
	if req.Approve {
		need |= core.PermApprove
	}
	if err := actor.Require(need); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	if err := req.validate(); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}

	date := req.Date
	if date.IsZero() {
		date = l.now()
	}
	date = core.DateOnly(date)

	err = l.inTx(ctx, func(q Queries, events *[]core.AuditEvent) error {
		from, err := activeCashBox(ctx, q, req.From)
		if err != nil {
			return err
		}
		to, err := activeCashBox(ctx, q, req.To)
		if err != nil {
			return err
		}
		if from.Currency != to.Currency {
			return &core.ValidationError{Field: "to", Reason: fmt.Sprintf("currency mismatch: %s is %s, %s is %s", from.Code, from.Currency, to.Code, to.Currency)}
		}

		categoryID, err := transferCategory(ctx, q)
		if err != nil {
			return err
		}

		now := l.now().UTC()
		leg := func(box core.CashBox, kind core.Kind, desc string) (core.Transaction, error) {
			voucher, err := l.allocateVoucher(ctx, q, box, kind)
			if err != nil {
				return core.Transaction{}, err
			}
			t := core.Transaction{
				ID:          l.newID(),
				VoucherNo:   voucher,
				CashBoxID:   box.ID,
				Kind:        kind,
				Status:      core.StatusDraft,
				Date:        date,
				Amount:      req.Amount,
				Currency:    box.Currency,
				Rate:        decimal.NewFromInt(1),
				AmountBase:  req.Amount,
				CategoryID:  categoryID,
				Description: desc,
				CreatedBy:   actor.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := q.InsertTransaction(ctx, &t); err != nil {
				return core.Transaction{}, fmt.Errorf("insert %s: %w", kind, err)
			}
			return t, nil
		}

		out, err = leg(from, core.KindTransferOut, transferDescription("Transfer to", to, req.Description))
		if err != nil {
			return err
		}
		in, err = leg(to, core.KindTransferIn, transferDescription("Transfer from", from, req.Description))
		if err != nil {
			return err
		}

		out.LinkedTxnID = in.ID
		in.LinkedTxnID = out.ID
		if req.Approve {
			for _, t := range []*core.Transaction{&out, &in} {
				t.Status = core.StatusApproved
				t.ApprovedBy = &actor.ID
				t.ApprovedAt = &now
			}
		}
		for _, t := range []*core.Transaction{&out, &in} {
			if err := q.UpdateTransaction(ctx, t); err != nil {
				return fmt.Errorf("link %s: %w", t.Kind, err)
			}
		}

		// Checked last, under the write transaction, so a concurrent
		// approval cannot drain the source between check and commit.
		// Approved legs are excluded: the outflow is measured against the
		// balance before this transfer.
		if err := requireFundsExcluding(ctx, q, from, req.Amount, req.Approve); err != nil {
			return err
		}

		*events = append(*events, l.event(core.AuditTransfer, out, "", actor))
		if req.Approve {
			*events = append(*events,
				l.event(core.AuditApprove, out, core.StatusDraft, actor),
				l.event(core.AuditApprove, in, core.StatusDraft, actor))
		}
		return nil
	})
	if err != nil {
		l.logger.WarnContext(ctx, "Transfer rejected",
			applog.FieldOperation, applog.OpTransfer,
			applog.FieldActor, actor.ID,
			applog.FieldAmount, core.FormatAmount(req.Amount),
			applog.FieldError, err)
		return core.Transaction{}, core.Transaction{}, err
	}

	l.logger.InfoContext(ctx, "Transfer created",
		applog.FieldOperation, applog.OpTransfer,
		applog.FieldActor, actor.ID,
		applog.FieldVoucherNo, out.VoucherNo,
		applog.FieldCounterpartVoucherNo, in.VoucherNo,
		applog.FieldAmount, core.FormatAmount(req.Amount),
		applog.FieldStatus, string(out.Status))
	return out, in, nil
}

func transferDescription(prefix string, counterpart core.CashBox, desc string) string {
	s := fmt.Sprintf("%s %s.", prefix, counterpart.Name)
	if desc = strings.TrimSpace(desc); desc != "" {
		s += " " + desc
	}
	return s
}

// transferCategory returns the first active category of kind transfer, or
// nil when none exists.
func transferCategory(ctx context.Context, q Queries) (*int64, error) {
	cats, err := q.ListCategories(ctx, core.CategoryTransfer)
	if err != nil {
		return nil, fmt.Errorf("list transfer categories: %w", err)
	}
	for _, c := range cats {
		if c.Active {
			id := c.ID
			return &id, nil
		}
	}
	return nil, nil
}

// requireFundsExcluding checks the source balance for a transfer. When the
// new outgoing leg is already approved it is part of the aggregate, so the
// amount is added back before comparing.
func requireFundsExcluding(ctx context.Context, q Queries, box core.CashBox, amount decimal.Decimal, alreadyApproved bool) error {
	balance, err := boxBalance(ctx, q, box)
	if err != nil {
		return err
	}
	if alreadyApproved {
		balance = balance.Add(amount)
	}
	if balance.LessThan(amount) {
		return &core.InsufficientFundsError{CashBoxCode: box.Code, Balance: balance, Amount: amount}
	}
	return nil
}
