package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/shopspring/decimal"

	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

type CashboxCmd struct {
	Add        CashboxAddCmd        `cmd:"" help:"Create a cashbox."`
	Deactivate CashboxDeactivateCmd `cmd:"" help:"Deactivate a cashbox."`
	List       CashboxListCmd       `cmd:"" help:"List cashboxes."`
}

type CashboxAddCmd struct {
	Code     string `arg:"" help:"Short unique code, e.g. MAIN."`
	Name     string `arg:"" help:"Display name."`
	Currency string `help:"ISO currency code. Defaults to BASE_CURRENCY."`
	Opening  string `help:"Opening balance." default:"0"`
	Kind     string `help:"Cashbox kind." default:"main" enum:"main,branch,petty"`
}

func (cmd *CashboxAddCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	opening, err := decimal.NewFromString(strings.ReplaceAll(cmd.Opening, ",", "."))
	if err != nil {
		return &core.ValidationError{Field: "opening", Reason: fmt.Sprintf("%q is not an amount", cmd.Opening), Err: err}
	}

	box, err := app.Ledger.CreateCashBox(app.context(), actor, core.CashBox{
		Code:           normalizeCode(cmd.Code),
		Name:           cmd.Name,
		Currency:       app.currency(cmd.Currency),
		OpeningBalance: opening,
		Kind:           core.BoxKind(cmd.Kind),
	})
	app.logResult(applog.OpSetup, actor, err, applog.FieldCode, cmd.Code)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Cashbox %s created (id %d, opening %s %s)", box.Code, box.ID, core.FormatAmount(box.OpeningBalance), box.Currency)
	return nil
}

type CashboxDeactivateCmd struct {
	Cashbox string `arg:"" help:"Cashbox code or id."`
}

func (cmd *CashboxDeactivateCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	c := app.context()
	box, err := app.resolveBox(c, cmd.Cashbox)
	if err != nil {
		return err
	}
	err = app.Ledger.DeactivateCashBox(c, actor, box.ID)
	app.logResult(applog.OpSetup, actor, err, applog.FieldCashBox, box.ID)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Cashbox %s deactivated", box.Code)
	return nil
}

type CashboxListCmd struct {
	All bool `help:"Include inactive cashboxes."`
}

func (cmd *CashboxListCmd) Run(ctx *kong.Context, app *App) error {
	boxes, err := app.Ledger.CashBoxes(app.context(), !cmd.All)
	if err != nil {
		return err
	}
	t := newTable("ID", "CODE", "NAME", "KIND", "CURRENCY", "OPENING", "ACTIVE").alignRight(0, 5)
	for _, b := range boxes {
		t.add(strconv.FormatInt(b.ID, 10), b.Code, b.Name, string(b.Kind), b.Currency,
			core.FormatAmount(b.OpeningBalance), strconv.FormatBool(b.Active))
	}
	t.render(ctx.Stdout)
	return nil
}

type CategoryCmd struct {
	Add  CategoryAddCmd  `cmd:"" help:"Create a category."`
	List CategoryListCmd `cmd:"" help:"List categories."`
}

type CategoryAddCmd struct {
	Code   string `arg:"" help:"Short unique code."`
	Name   string `arg:"" help:"Display name."`
	Kind   string `help:"Category kind." default:"expense" enum:"income,expense,transfer"`
	Parent int64  `help:"Parent category id."`
}

func (cmd *CategoryAddCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	cat, err := app.Ledger.CreateCategory(app.context(), actor, core.Category{
		Code:     normalizeCode(cmd.Code),
		Name:     cmd.Name,
		Kind:     core.CategoryKind(cmd.Kind),
		ParentID: optionalID(cmd.Parent),
	})
	app.logResult(applog.OpSetup, actor, err, applog.FieldCode, cmd.Code)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Category %s created (id %d)", cat.Code, cat.ID)
	return nil
}

type CategoryListCmd struct {
	Kind string `help:"Only list categories of this kind (income, expense, transfer)."`
}

func (cmd *CategoryListCmd) Run(ctx *kong.Context, app *App) error {
	if cmd.Kind != "" && !core.CategoryKind(cmd.Kind).Valid() {
		return &core.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown category kind %q", cmd.Kind)}
	}
	cats, err := app.Ledger.Categories(app.context(), core.CategoryKind(cmd.Kind))
	if err != nil {
		return err
	}
	t := newTable("ID", "CODE", "NAME", "KIND", "PARENT").alignRight(0)
	for _, c := range cats {
		parent := ""
		if c.ParentID != nil {
			parent = strconv.FormatInt(*c.ParentID, 10)
		}
		t.add(strconv.FormatInt(c.ID, 10), c.Code, c.Name, string(c.Kind), parent)
	}
	t.render(ctx.Stdout)
	return nil
}

type PartnerCmd struct {
	Add  PartnerAddCmd  `cmd:"" help:"Create a partner."`
	List PartnerListCmd `cmd:"" help:"List partners."`
}

type PartnerAddCmd struct {
	Code  string `arg:"" help:"Short unique code."`
	Name  string `arg:"" help:"Display name."`
	Kind  string `help:"Partner kind." default:"other" enum:"customer,supplier,employee,other"`
	Phone string `help:"Phone number."`
	Email string `help:"Email address."`
	Notes string `help:"Free-text notes."`
}

func (cmd *PartnerAddCmd) Run(ctx *kong.Context, globals *Globals, app *App) error {
	actor, err := globals.Actor()
	if err != nil {
		return err
	}
	p, err := app.Ledger.CreatePartner(app.context(), actor, core.Partner{
		Code:  normalizeCode(cmd.Code),
		Name:  cmd.Name,
		Kind:  core.PartnerKind(cmd.Kind),
		Phone: cmd.Phone,
		Email: cmd.Email,
		Notes: cmd.Notes,
	})
	app.logResult(applog.OpSetup, actor, err, applog.FieldCode, cmd.Code)
	if err != nil {
		return err
	}
	printSuccessf(ctx.Stdout, "Partner %s created (id %d)", p.Code, p.ID)
	return nil
}

type PartnerListCmd struct{}

func (cmd *PartnerListCmd) Run(ctx *kong.Context, app *App) error {
	partners, err := app.Ledger.Partners(app.context())
	if err != nil {
		return err
	}
	t := newTable("ID", "CODE", "NAME", "KIND", "PHONE", "EMAIL").alignRight(0)
	for _, p := range partners {
		t.add(strconv.FormatInt(p.ID, 10), p.Code, p.Name, string(p.Kind), p.Phone, p.Email)
	}
	t.render(ctx.Stdout)
	return nil
}
