package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashbook/internal/config"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	applog "cashbook/internal/log"
)

type Globals struct {
	User int64  `help:"Id of the acting user." default:"1" env:"CASHBOOK_USER"`
	Role string `help:"Role of the acting user (admin, approver, cashier, auditor)." default:"admin" env:"CASHBOOK_ROLE" enum:"admin,approver,cashier,auditor"`
}

// Actor resolves the acting user from the global flags.
func (g *Globals) Actor() (core.Actor, error) {
	perms, err := core.RolePermissions(g.Role)
	if err != nil {
		return core.Actor{}, err
	}
	return core.Actor{ID: g.User, Permissions: perms}, nil
}

type Commands struct {
	Globals

	Cashbox     CashboxCmd     `cmd:"" help:"Manage cashboxes."`
	Category    CategoryCmd    `cmd:"" help:"Manage transaction categories."`
	Partner     PartnerCmd     `cmd:"" help:"Manage partners."`
	Draft       DraftCmd       `cmd:"" help:"Record a draft receipt or payment."`
	Approve     ApproveCmd     `cmd:"" help:"Approve a draft transaction."`
	Void        VoidCmd        `cmd:"" help:"Void a transaction."`
	Transfer    TransferCmd    `cmd:"" help:"Move cash between two cashboxes."`
	Show        ShowCmd        `cmd:"" help:"Show one transaction."`
	List        ListCmd        `cmd:"" help:"List transactions."`
	Balance     BalanceCmd     `cmd:"" help:"Show the derived balance of cashboxes."`
	Summary     SummaryCmd     `cmd:"" help:"Show approved totals per kind for a date range."`
	Voucher     VoucherCmd     `cmd:"" help:"Reserve the next voucher number."`
	ClosePeriod ClosePeriodCmd `cmd:"" name:"close-period" help:"Record a month-end close."`
}

// App is the runtime a command works against. It is bound into kong when
// running the parsed command.
type App struct {
	Ledger *ledger.Ledger
	Logger *applog.Logger
	// BaseCurrency is the default currency for new cashboxes.
	BaseCurrency string
	// Now defaults to time.Now and fixes "today" for date defaults.
	Now func() time.Time

	closers []func() error
}

// NewApp wires storage, auditing and the ledger from configuration.
func NewApp(cfg *config.Config, logger *applog.Logger) (*App, error) {
	store, closeStore, err := InitStore(logger, cfg)
	if err != nil {
		return nil, err
	}
	sink, closeSink := InitAuditSink(logger, cfg)
	return &App{
		Ledger:       NewLedger(cfg, store, sink, logger),
		Logger:       logger.WithComponent(applog.ComponentCLI),
		BaseCurrency: cfg.BaseCurrency,
		closers:      []func() error{closeSink, closeStore},
	}, nil
}

// context starts a command context with a fresh trace id.
func (a *App) context() context.Context {
	return applog.WithTraceID(context.Background(), "")
}

// currency returns code, or the base currency when code is empty.
func (a *App) currency(code string) string {
	if code = normalizeCode(code); code != "" {
		return code
	}
	if a.BaseCurrency != "" {
		return a.BaseCurrency
	}
	return "EGP"
}

func (a *App) today() time.Time {
	if a.Now != nil {
		return core.DateOnly(a.Now())
	}
	return core.DateOnly(time.Now())
}

// Close releases the audit publisher and the store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// logResult records the outcome of a mutating command.
func (a *App) logResult(op string, actor core.Actor, err error, args ...any) {
	if a.Logger == nil {
		return
	}
	if err != nil {
		a.Logger.Warn("Command failed", append([]any{
			applog.FieldOperation, op,
			applog.FieldActor, actor.ID,
			applog.FieldError, err,
			applog.FieldErrorType, ErrorType(err),
		}, args...)...)
		return
	}
	a.Logger.Debug("Command succeeded", append([]any{
		applog.FieldOperation, op,
		applog.FieldActor, actor.ID,
	}, args...)...)
}

// resolveBox accepts a cashbox code or numeric id.
func (a *App) resolveBox(ctx context.Context, ref string) (core.CashBox, error) {
	if id, ok := parseID(ref); ok {
		return a.Ledger.CashBox(ctx, id)
	}
	return a.Ledger.CashBoxByCode(ctx, normalizeCode(ref))
}

func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return d, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: "amount", Reason: fmt.Sprintf("%q is not a positive amount", s), Err: err}
	}
	return d, nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
