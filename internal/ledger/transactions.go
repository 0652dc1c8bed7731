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

// DraftRequest carries the fields of a new receipt or payment.
type DraftRequest struct {
	CashBoxID   int64
	Kind        core.Kind
	Date        time.Time
	Amount      decimal.Decimal
	Currency    string          // defaults to the cashbox currency
	Rate        decimal.Decimal // defaults to 1
	CategoryID  *int64
	PartnerID   *int64
	Description string
	ReferenceNo string
	ProjectCode string
	CostCenter  string
}

func (r DraftRequest) validate() error {
	if !r.Kind.Valid() {
		return &core.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", r.Kind), Err: core.ErrInvalidKind}
	}
	if r.Kind.IsTransfer() {
		return &core.ValidationError{Field: "kind", Reason: "transfer legs are created as a pair by CreateTransfer", Err: core.ErrInvalidKind}
	}
	if err := core.ValidateAmount(r.Amount); err != nil {
		return err
	}
	if r.Date.IsZero() {
		return &core.ValidationError{Field: "date", Reason: "is required"}
	}
	if r.Currency != "" {
		if err := core.ValidateCurrency(r.Currency); err != nil {
			return err
		}
	}
	if !r.Rate.IsZero() && !r.Rate.IsPositive() {
		return &core.ValidationError{Field: "rate", Reason: "must be greater than zero", Err: core.ErrInvalidRate}
	}
	if r.Rate.IsPositive() && core.BaseAmount(r.Amount, r.Rate).GreaterThan(core.MaxAmount) {
		return &core.ValidationError{Field: "rate", Reason: "base amount exceeds " + core.MaxAmount.String(), Err: core.ErrInvalidRate}
	}
	if len(r.Description) > core.MaxDescriptionLen {
		return &core.ValidationError{Field: "description", Reason: fmt.Sprintf("too long (max %d characters)", core.MaxDescriptionLen)}
	}
	return nil
}

// CreateDraft validates and stores a new draft receipt or payment with a
// freshly allocated voucher number.
func (l *Ledger) CreateDraft(ctx context.Context, actor core.Actor, req DraftRequest) (core.Transaction, error) {
	if err := actor.Require(core.PermCreateDraft); err != nil {
		return core.Transaction{}, err
	}
	if err := req.validate(); err != nil {
		return core.Transaction{}, err
	}

	var txn core.Transaction
	err := l.inTx(ctx, func(q Queries, events *[]core.AuditEvent) error {
		box, err := activeCashBox(ctx, q, req.CashBoxID)
		if err != nil {
			return err
		}
		if err := l.checkReferences(ctx, q, req); err != nil {
			return err
		}

		voucher, err := l.allocateVoucher(ctx, q, box, req.Kind)
		if err != nil {
			return err
		}

		currency := req.Currency
		if currency == "" {
			currency = box.Currency
		}
		rate := req.Rate
		if rate.IsZero() {
			rate = decimal.NewFromInt(1)
		}
		now := l.now().UTC()

		txn = core.Transaction{
			ID:          l.newID(),
			VoucherNo:   voucher,
			CashBoxID:   box.ID,
			Kind:        req.Kind,
			Status:      core.StatusDraft,
			Date:        core.DateOnly(req.Date),
			Amount:      req.Amount,
			Currency:    currency,
			Rate:        rate,
			AmountBase:  core.BaseAmount(req.Amount, rate),
			CategoryID:  req.CategoryID,
			PartnerID:   req.PartnerID,
			Description: strings.TrimSpace(req.Description),
			ReferenceNo: strings.TrimSpace(req.ReferenceNo),
			ProjectCode: strings.TrimSpace(req.ProjectCode),
			CostCenter:  strings.TrimSpace(req.CostCenter),
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := q.InsertTransaction(ctx, &txn); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		*events = append(*events, l.event(core.AuditCreate, txn, "", actor))
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	l.logger.InfoContext(ctx, "Draft created", applog.NewFields().
		WithOperation(applog.OpCreateDraft).
		WithActor(actor.ID).
		WithTransaction(txn.ID, txn.VoucherNo, txn.CashBoxID, string(txn.Kind), string(txn.Status)).
		ToSlice()...)
	return txn, nil
}

func (l *Ledger) checkReferences(ctx context.Context, q Queries, req DraftRequest) error {
	if req.CategoryID != nil {
		cat, err := l.category(ctx, q, *req.CategoryID)
		if err != nil {
			return err
		}
		if !cat.Active {
			return &core.ValidationError{Field: "category", Reason: fmt.Sprintf("category %s is inactive", cat.Code)}
		}
		if l.strictKinds && !cat.Kind.Matches(req.Kind) {
			return &core.ValidationError{Field: "category", Reason: fmt.Sprintf("%s category %s does not fit a %s", cat.Kind, cat.Code, req.Kind)}
		}
	}
	if req.PartnerID != nil {
		p, err := l.partner(ctx, q, *req.PartnerID)
		if err != nil {
			return err
		}
		if !p.Active {
			return &core.ValidationError{Field: "partner", Reason: fmt.Sprintf("partner %s is inactive", p.Code)}
		}
	}
	return nil
}

// Approve moves a draft to approved. Outflows re-check the cashbox balance
// inside the write transaction. A transfer leg is approved together with
// its linked leg.
func (l *Ledger) Approve(ctx context.Context, actor core.Actor, txnID string) (core.Transaction, error) {
	if err := actor.Require(core.PermApprove); err != nil {
		return core.Transaction{}, err
	}

	var approved core.Transaction
	err := l.inTx(ctx, func(q Queries, events *[]core.AuditEvent) error {
		txn, err := q.GetTransaction(ctx, txnID)
		if err != nil {
			return err
		}
		legs := []core.Transaction{txn}
		if txn.IsLinked() {
			linked, err := q.GetTransaction(ctx, txn.LinkedTxnID)
			if err != nil {
				return fmt.Errorf("load linked transaction: %w", err)
			}
			legs = append(legs, linked)
		}
		for _, leg := range legs {
			if !leg.Status.CanTransition(core.StatusApproved) {
				return transitionError(leg, core.StatusApproved)
			}
		}

		for _, leg := range legs {
			if !leg.Kind.Outflow() {
				continue
			}
			box, err := q.GetCashBox(ctx, leg.CashBoxID)
			if err != nil {
				return err
			}
			if err := requireFunds(ctx, q, box, leg.Amount); err != nil {
				return err
			}
		}

		now := l.now().UTC()
		for i := range legs {
			leg := &legs[i]
			leg.Status = core.StatusApproved
			leg.ApprovedBy = &actor.ID
			leg.ApprovedAt = &now
			leg.UpdatedAt = now
			if err := q.UpdateTransaction(ctx, leg); err != nil {
				return fmt.Errorf("update transaction: %w", err)
			}
			*events = append(*events, l.event(core.AuditApprove, *leg, core.StatusDraft, actor))
		}
		approved = legs[0]
		return nil
	})
	if err != nil {
		l.logFailure(ctx, applog.OpApprove, actor, txnID, err)
		return core.Transaction{}, err
	}

	l.logger.InfoContext(ctx, "Transaction approved", applog.NewFields().
		WithOperation(applog.OpApprove).
		WithActor(actor.ID).
		WithTransaction(approved.ID, approved.VoucherNo, approved.CashBoxID, string(approved.Kind), string(approved.Status)).
		ToSlice()...)
	return approved, nil
}

// Void cancels a draft or approved transaction. Voiding either leg of a
// transfer pair voids the other leg as well.
func (l *Ledger) Void(ctx context.Context, actor core.Actor, txnID, reason string) (core.Transaction, error) {
	if err := actor.Require(core.PermVoid); err != nil {
		return core.Transaction{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return core.Transaction{}, &core.ValidationError{Field: "reason", Reason: "is required"}
	}

	var voided core.Transaction
	err := l.inTx(ctx, func(q Queries, events *[]core.AuditEvent) error {
		txn, err := q.GetTransaction(ctx, txnID)
		if err != nil {
			return err
		}
		if !txn.Status.CanTransition(core.StatusVoid) {
			return transitionError(txn, core.StatusVoid)
		}

		now := l.now().UTC()
		if err := l.voidOne(ctx, q, &txn, actor, reason, now, events); err != nil {
			return err
		}

		if txn.IsLinked() {
			linked, err := q.GetTransaction(ctx, txn.LinkedTxnID)
			if err != nil {
				return fmt.Errorf("load linked transaction: %w", err)
			}
			if linked.Status != core.StatusVoid {
				cascade := fmt.Sprintf("auto-void: linked to voucher %s", txn.VoucherNo)
				if err := l.voidOne(ctx, q, &linked, actor, cascade, now, events); err != nil {
					return err
				}
			}
		}
		voided = txn
		return nil
	})
	if err != nil {
		l.logFailure(ctx, applog.OpVoid, actor, txnID, err)
		return core.Transaction{}, err
	}

	l.logger.InfoContext(ctx, "Transaction voided", applog.NewFields().
		WithOperation(applog.OpVoid).
		WithActor(actor.ID).
		WithTransaction(voided.ID, voided.VoucherNo, voided.CashBoxID, string(voided.Kind), string(voided.Status)).
		ToSlice()...)
	return voided, nil
}

func (l *Ledger) voidOne(ctx context.Context, q Queries, txn *core.Transaction, actor core.Actor, reason string, now time.Time, events *[]core.AuditEvent) error {
	old := txn.Status
	txn.Status = core.StatusVoid
	txn.VoidedBy = &actor.ID
	txn.VoidedAt = &now
	txn.VoidReason = reason
	txn.UpdatedAt = now
	if err := q.UpdateTransaction(ctx, txn); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	*events = append(*events, l.event(core.AuditVoid, *txn, old, actor))
	return nil
}

// Transaction returns a single transaction by id.
func (l *Ledger) Transaction(ctx context.Context, id string) (core.Transaction, error) {
	return l.store.GetTransaction(ctx, id)
}

// TransactionByVoucher returns the transaction carrying voucherNo.
func (l *Ledger) TransactionByVoucher(ctx context.Context, voucherNo string) (core.Transaction, error) {
	return l.store.GetTransactionByVoucher(ctx, strings.ToUpper(strings.TrimSpace(voucherNo)))
}

// Transactions lists transactions matching f, newest first.
func (l *Ledger) Transactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	txns, err := l.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

func transitionError(t core.Transaction, to core.Status) error {
	return &core.InvalidTransitionError{
		TransactionID: t.ID,
		VoucherNo:     t.VoucherNo,
		From:          t.Status,
		To:            to,
	}
}

func activeCashBox(ctx context.Context, q Queries, id int64) (core.CashBox, error) {
	box, err := q.GetCashBox(ctx, id)
	if err != nil {
		return core.CashBox{}, err
	}
	if !box.Active {
		return core.CashBox{}, &core.ValidationError{Field: "cashbox", Reason: fmt.Sprintf("cashbox %s is inactive", box.Code)}
	}
	return box, nil
}

func (l *Ledger) logFailure(ctx context.Context, op string, actor core.Actor, txnID string, err error) {
	l.logger.WarnContext(ctx, "Ledger operation rejected",
		applog.FieldOperation, op,
		applog.FieldActor, actor.ID,
		applog.FieldTransactionID, txnID,
		applog.FieldError, err)
}
