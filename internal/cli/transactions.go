package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
	applog "cashbook/internal/log"
)

// resolveTxn accepts a transaction id or a voucher number.
func (a *App) resolveTxn(ctx context.Context, ref string) (core.Transaction, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return a.Ledger.Transaction(ctx, ref)
	}
	return a.Ledger.TransactionByVoucher(ctx, ref)
}

// ensureOpen rejects dates inside a closed month.
func (a *App) ensureOpen(ctx context.Context, box core.CashBox, date time.Time) error {
	closed, err := a.Ledger.IsPeriodClosed(ctx, box.ID, date)
	if err != nil {
		return err
	}
	if closed {
		return &core.ValidationError{Field: "date", Reason: fmt.Sprintf("period %s is closed for cashbox %s", date.Format("2006-01"), box.Code)}
	}
	return nil
}

type DraftCmd struct {
	Cashbox     string `arg:"" help:"Cashbox code or id."`
	Kind        string `arg:"" help:"receipt or payment." enum:"receipt,payment"`
	Amount      string `arg:"" help:"Positive amount with at most two decimals."`
	Date        string `help:"Transaction date (YYYY-MM-DD). Defaults to today."`
	Currency    string `help:"Currency code. Defaults to the cashbox currency."`
	Rate        string `help:"Exchange rate into the base currency." default:"1"`
	Category    int64  `help:"Category id."`
	Partner     int64  `help:"Partner id."`
	Description string `help:"Free-text description." short:"d"`
	Reference   string `help:"External reference number."`
	Project     string `help:"Project code."`
	CostCenter  string `help:"Cost center."`
	Approve     bool   `help:"Approve the draft right away."`
}

func (cmd *DraftCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	c := app.context()

	box, err := app.resolveBox(c, cmd.Cashbox)
	if err != nil {
		return err
	}
	date, err := parseDate(cmd.Date, app.today())
	if err != nil {
		return err
	}
	amount, err := parseAmount(cmd.Amount)
	if err != nil {
		return err
	}
	rate, err := core.ParseRate(cmd.Rate)
	if err != nil {
		return &core.ValidationError{Field: "rate", Reason: fmt.Sprintf("%q is not a positive rate", cmd.Rate), Err: err}
	}
	if err := app.ensureOpen(c, box, date); err != nil {
		return err
	}

	txn, err := app.Ledger.CreateDraft(c, actor, ledger.DraftRequest{
		CashBoxID:   box.ID,
		Kind:        core.Kind(cmd.Kind),
		Date:        date,
		Amount:      amount,
		Currency:    normalizeCode(cmd.Currency),
		Rate:        rate,
		CategoryID:  optionalID(cmd.Category),
		PartnerID:   optionalID(cmd.Partner),
		Description: cmd.Description,
		ReferenceNo: cmd.Reference,
		ProjectCode: cmd.Project,
		CostCenter:  cmd.CostCenter,
	})
	app.logResult(applog.OpCreateDraft, actor, err, applog.FieldCashBox, box.ID)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Draft %s recorded: %s %s %s", txn.VoucherNo, txn.Kind, core.FormatAmount(txn.Amount), txn.Currency)

	if !cmd.Approve {
		return nil
	}
	approved, err := app.Ledger.Approve(c, actor, txn.ID)
	app.logResult(applog.OpApprove, actor, err, applog.FieldVoucherNo, txn.VoucherNo)
	if err != nil {
		return fmt.Errorf("draft %s kept, approval failed: %w", txn.VoucherNo, err)
	}
	printSuccessf(ctx.Stdout, "Approved %s", approved.VoucherNo)
	return nil
}

type ApproveCmd struct {
	Transaction string `arg:"" help:"Voucher number or transaction id."`
}

func (cmd *ApproveCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	c := app.context()
	txn, err := app.resolveTxn(c, cmd.Transaction)
	if err != nil {
		return err
	}
	approved, err := app.Ledger.Approve(c, actor, txn.ID)
	app.logResult(applog.OpApprove, actor, err, applog.FieldVoucherNo, txn.VoucherNo)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Approved %s", approved.VoucherNo)
	if approved.IsLinked() {
		printInfof(ctx.Stdout, "Linked transfer leg approved with it")
	}
	return nil
}

type VoidCmd struct {
	Transaction string `arg:"" help:"Voucher number or transaction id."`
	Reason      string `help:"Why the transaction is voided." required:""`
	Yes         bool   `help:"Do not ask for confirmation." short:"y"`
}

func (cmd *VoidCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	c := app.context()
	txn, err := app.resolveTxn(c, cmd.Transaction)
	if err != nil {
		return err
	}

	if !cmd.Yes && isTerminal() {
		question := fmt.Sprintf("Void %s (%s %s)?", txn.VoucherNo, txn.Kind, core.FormatAmount(txn.Amount))
		if txn.IsLinked() {
			question = fmt.Sprintf("Void %s and its linked transfer leg?", txn.VoucherNo)
		}
		ok, err := confirm(question)
		if err != nil {
			return err
		}
		if !ok {
			printInfof(ctx.Stdout, "Nothing changed")
			return nil
		}
	}

	voided, err := app.Ledger.Void(c, actor, txn.ID, cmd.Reason)
	app.logResult(applog.OpVoid, actor, err, applog.FieldVoucherNo, txn.VoucherNo)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Voided %s", voided.VoucherNo)
	if voided.IsLinked() {
		printInfof(ctx.Stdout, "Linked transfer leg voided with it")
	}
	return nil
}

type TransferCmd struct {
	From        string `arg:"" help:"Source cashbox code or id."`
	To          string `arg:"" help:"Destination cashbox code or id."`
	Amount      string `arg:"" help:"Positive amount to move, with at most two decimals."`
	Date        string `help:"Transfer date (YYYY-MM-DD). Defaults to today."`
	Description string `help:"Free-text description." short:"d"`
	Draft       bool   `help:"Leave both legs as drafts instead of approving them."`
}

func (cmd *TransferCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	c := app.context()

	from, err := app.resolveBox(c, cmd.From)
	if err != nil {
		return err
	}
	to, err := app.resolveBox(c, cmd.To)
	if err != nil {
		return err
	}
	date, err := parseDate(cmd.Date, app.today())
	if err != nil {
		return err
	}
	amount, err := parseAmount(cmd.Amount)
	if err != nil {
		return err
	}
	for _, box := range []core.CashBox{from, to} {
		if err := app.ensureOpen(c, box, date); err != nil {
			return err
		}
	}

	out, in, err := app.Ledger.CreateTransfer(c, actor, ledger.TransferRequest{
		From:        from.ID,
		To:          to.ID,
		Amount:      amount,
		Date:        date,
		Description: cmd.Description,
		Approve:     !cmd.Draft,
	})
	app.logResult(applog.OpTransfer, actor, err, applog.FieldFrom, from.Code, applog.FieldTo, to.Code)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Transfer %s %s: %s -> %s (%s / %s, %s)",
		core.FormatAmount(amount), from.Currency, from.Code, to.Code, out.VoucherNo, in.VoucherNo, out.Status)
	return nil
}

type ShowCmd struct {
	Transaction string `arg:"" help:"Voucher number or transaction id."`
}

func (cmd *ShowCmd) Run(ctx *kong.Context, app *App) error {
	txn, err := app.resolveTxn(app.context(), cmd.Transaction)
	if err != nil {
		return err
	}
	printTransaction(ctx.Stdout, txn)
	return nil
}

func printTransaction(w io.Writer, t core.Transaction) {
	rows := [][2]string{
		{"Voucher", t.VoucherNo},
		{"ID", t.ID},
		{"Cashbox", strconv.FormatInt(t.CashBoxID, 10)},
		{"Kind", string(t.Kind)},
		{"Status", string(t.Status)},
		{"Date", t.Date.Format(time.DateOnly)},
		{"Amount", core.FormatAmount(t.Amount) + " " + t.Currency},
	}
	if !t.Rate.Equal(decimal.NewFromInt(1)) {
		rows = append(rows, [2]string{"Rate", t.Rate.String()}, [2]string{"Base amount", core.FormatAmount(t.AmountBase)})
	}
	if t.Description != "" {
		rows = append(rows, [2]string{"Description", t.Description})
	}
	if t.ReferenceNo != "" {
		rows = append(rows, [2]string{"Reference", t.ReferenceNo})
	}
	if t.LinkedTxnID != "" {
		rows = append(rows, [2]string{"Linked", t.LinkedTxnID})
	}
	if t.ApprovedBy != nil {
		rows = append(rows, [2]string{"Approved by", strconv.FormatInt(*t.ApprovedBy, 10)})
	}
	if t.VoidedBy != nil {
		rows = append(rows, [2]string{"Voided by", strconv.FormatInt(*t.VoidedBy, 10)}, [2]string{"Void reason", t.VoidReason})
	}

	tbl := newTable("FIELD", "VALUE")
	for _, r := range rows {
		tbl.add(r[0], r[1])
	}
	tbl.render(w)
}

type ListCmd struct {
	Cashbox string `help:"Only this cashbox (code or id)."`
	Status  string `help:"Only this status (draft, approved, void)."`
	Kind    string `help:"Only this kind (receipt, payment, transfer_out, transfer_in)."`
	From    string `help:"First day (YYYY-MM-DD)."`
	To      string `help:"Last day (YYYY-MM-DD)."`
	Limit   int    `help:"Maximum number of rows." default:"50"`
}

func (cmd *ListCmd) Run(ctx *kong.Context, app *App) error {
	c := app.context()
	f := ledger.TransactionFilter{
		Status: core.Status(cmd.Status),
		Kind:   core.Kind(cmd.Kind),
		Limit:  cmd.Limit,
	}
	if cmd.Status != "" && !f.Status.Valid() {
		return &core.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", cmd.Status)}
	}
	if cmd.Kind != "" && !f.Kind.Valid() {
		return &core.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", cmd.Kind)}
	}
	if cmd.Cashbox != "" {
		box, err := app.resolveBox(c, cmd.Cashbox)
		if err != nil {
			return err
		}
		f.CashBoxID = box.ID
	}
	var err error
	if f.Range.From, err = parseDate(cmd.From, time.Time{}); err != nil {
		return err
	}
	if f.Range.To, err = parseDate(cmd.To, time.Time{}); err != nil {
		return err
	}

	txns, err := app.Ledger.Transactions(c, f)
	if err != nil {
		return err
	}
	t := newTable("VOUCHER", "DATE", "KIND", "STATUS", "AMOUNT", "CUR", "DESCRIPTION").alignRight(4)
	for _, txn := range txns {
		t.add(txn.VoucherNo, txn.Date.Format(time.DateOnly), string(txn.Kind), string(txn.Status),
			core.FormatAmount(txn.Signed()), txn.Currency, txn.Description)
	}
	t.render(ctx.Stdout)
	return nil
}
