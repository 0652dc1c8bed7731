package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alecthomas/kong"

	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

type BalanceCmd struct {
	Cashbox string `arg:"" optional:"" help:"Cashbox code or id. Omit for every active cashbox."`
}

func (cmd *BalanceCmd) Run(ctx *kong.Context, app *App) error {
	c := app.context()
	var boxes []core.CashBox
	if cmd.Cashbox != "" {
		box, err := app.resolveBox(c, cmd.Cashbox)
		if err != nil {
			return err
		}
		boxes = []core.CashBox{box}
	} else {
		var err error
		if boxes, err = app.Ledger.CashBoxes(c, true); err != nil {
			return err
		}
	}

	t := newTable("CODE", "NAME", "BALANCE", "CUR").alignRight(2)
	for _, box := range boxes {
		bal, err := app.Ledger.Balance(c, box.ID)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", box.Code, err)
		}
		t.add(box.Code, box.Name, core.FormatAmount(bal), box.Currency)
	}
	t.render(ctx.Stdout)
	return nil
}

type SummaryCmd struct {
	Cashbox string `arg:"" help:"Cashbox code or id."`
	From    string `help:"First day (YYYY-MM-DD). Defaults to the first of this month."`
	To      string `help:"Last day (YYYY-MM-DD). Defaults to today."`
}

func (cmd *SummaryCmd) Run(ctx *kong.Context, app *App) error {
	c := app.context()
	box, err := app.resolveBox(c, cmd.Cashbox)
	if err != nil {
		return err
	}
	today := app.today()
	from, err := parseDate(cmd.From, time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return err
	}
	to, err := parseDate(cmd.To, today)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return &core.ValidationError{Field: "to", Reason: "is before from"}
	}

	flows, err := app.Ledger.Summary(c, box.ID, core.DateRange{From: from, To: to})
	if err != nil {
		return err
	}
	printInfof(ctx.Stdout, "%s %s to %s (%s)", box.Code, from.Format(time.DateOnly), to.Format(time.DateOnly), box.Currency)
	t := newTable("KIND", "TOTAL").alignRight(1)
	t.add("receipts", core.FormatAmount(flows.Receipts))
	t.add("payments", core.FormatAmount(flows.Payments))
	t.add("transfers in", core.FormatAmount(flows.TransfersIn))
	t.add("transfers out", core.FormatAmount(flows.TransfersOut))
	t.add("net", core.FormatAmount(flows.Net()))
	t.render(ctx.Stdout)
	return nil
}

type VoucherCmd struct {
	Cashbox string `arg:"" help:"Cashbox code or id."`
	Kind    string `help:"Transaction kind, used when vouchers are tagged per kind."`
}

func (cmd *VoucherCmd) Run(ctx *kong.Context, app *App) error {
	c := app.context()
	box, err := app.resolveBox(c, cmd.Cashbox)
	if err != nil {
		return err
	}
	voucher, err := app.Ledger.NextVoucher(c, box.ID, core.Kind(cmd.Kind))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(ctx.Stdout, voucher)
	return nil
}

type ClosePeriodCmd struct {
	Cashbox string `arg:"" help:"Cashbox code or id."`
	Month   string `arg:"" help:"Month to close (YYYY-MM)."`
	Notes   string `help:"Free-text notes."`
}

func (cmd *ClosePeriodCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	c := app.context()
	box, err := app.resolveBox(c, cmd.Cashbox)
	if err != nil {
		return err
	}
	month, err := time.Parse("2006-01", cmd.Month)
	if err != nil {
		return &core.ValidationError{Field: "month", Reason: fmt.Sprintf("%q is not YYYY-MM", cmd.Month)}
	}

	pc, err := app.Ledger.ClosePeriod(c, actor, box.ID, month.Year(), int(month.Month()), cmd.Notes)
	app.logResult(applog.OpClosePeriod, actor, err, applog.FieldCashBox, box.ID, applog.FieldPeriod, cmd.Month)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Closed %s for %s", cmd.Month, box.Code)
	t := newTable("", "AMOUNT").alignRight(1)
	t.add("opening", core.FormatAmount(pc.OpeningBalance))
	t.add("receipts", core.FormatAmount(pc.TotalReceipts))
	t.add("payments", core.FormatAmount(pc.TotalPayments))
	t.add("transfers in", core.FormatAmount(pc.TotalTransfersIn))
	t.add("transfers out", core.FormatAmount(pc.TotalTransfersOut))
	t.add("closing", core.FormatAmount(pc.ClosingBalance))
	t.add("closed by", strconv.FormatInt(pc.ClosedBy, 10))
	t.render(ctx.Stdout)
	return nil
}
