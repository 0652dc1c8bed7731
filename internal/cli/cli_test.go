package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
	applog "cashbook/internal/log"
	"cashbook/internal/storage/memory"
)

var today = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func testApp(t *testing.T) *App {
	t.Helper()
	return &App{
		Ledger: ledger.New(memory.New(), ledger.Options{Clock: func() time.Time { return today }}),
		Logger: applog.Discard(applog.ComponentCLI),
		Now:    func() time.Time { return today },
	}
}

// run parses args like the cashbook binary and runs the selected command
// against app, returning stdout.
func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	var cmds Commands
	var stdout, stderr bytes.Buffer
	parser, err := kong.New(&cmds,
		kong.Name("cashbook"),
		kong.Writers(&stdout, &stderr),
		kong.Exit(func(int) { t.Fatalf("unexpected exit: %s", stderr.String()) }),
		kong.Bind(&cmds.Globals),
	)
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	if err != nil {
		return "", err
	}
	err = ctx.Run(app)
	return stdout.String(), err
}

func mustRun(t *testing.T, app *App, args ...string) string {
	t.Helper()
	out, err := run(t, app, args...)
	require.NoError(t, err, "cashbook %s", strings.Join(args, " "))
	return out
}

func TestCashFlowThroughCommands(t *testing.T) {
	app := testApp(t)

	mustRun(t, app, "cashbox", "add", "main", "Main Cash", "--opening", "1000")
	mustRun(t, app, "cashbox", "add", "PETTY", "Petty Cash", "--kind", "petty")

	out := mustRun(t, app, "draft", "MAIN", "receipt", "500", "-d", "Sales")
	assert.Contains(t, out, "MAIN-2024-000001")

	out = mustRun(t, app, "approve", "MAIN-2024-000001")
	assert.Contains(t, out, "Approved MAIN-2024-000001")

	out = mustRun(t, app, "transfer", "MAIN", "PETTY", "300")
	assert.Contains(t, out, "MAIN-2024-000002")
	assert.Contains(t, out, "PETTY-2024-000001")

	out = mustRun(t, app, "balance")
	assert.Regexp(t, `MAIN\s+Main Cash\s+1200\.00\s+EGP`, out)
	assert.Regexp(t, `PETTY\s+Petty Cash\s+300\.00\s+EGP`, out)

	out = mustRun(t, app, "summary", "MAIN")
	assert.Regexp(t, `receipts\s+500\.00`, out)
	assert.Regexp(t, `transfers out\s+300\.00`, out)
	assert.Regexp(t, `net\s+200\.00`, out)

	out = mustRun(t, app, "list", "--cashbox", "MAIN", "--status", "approved")
	assert.Contains(t, out, "MAIN-2024-000001")
	assert.Contains(t, out, "-300.00")
}

func TestDraftWithApproveKeepsDraftOnInsufficientFunds(t *testing.T) {
	app := testApp(t)
	mustRun(t, app, "cashbox", "add", "MAIN", "Main", "--opening", "100")

	_, err := run(t, app, "draft", "MAIN", "payment", "250", "--approve")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.Equal(t, 2, ExitCode(err))

	out := mustRun(t, app, "show", "MAIN-2024-000001")
	assert.Regexp(t, `Status\s+draft`, out)
}

func TestVoidRequiresReasonAndCascades(t *testing.T) {
	app := testApp(t)
	mustRun(t, app, "cashbox", "add", "MAIN", "Main", "--opening", "100")
	mustRun(t, app, "cashbox", "add", "PETTY", "Petty")
	mustRun(t, app, "transfer", "MAIN", "PETTY", "40")

	_, err := run(t, app, "void", "MAIN-2024-000001", "--yes")
	require.Error(t, err, "missing --reason is a parse error")

	out := mustRun(t, app, "void", "MAIN-2024-000001", "--reason", "wrong box", "--yes")
	assert.Contains(t, out, "Voided MAIN-2024-000001")
	assert.Contains(t, out, "Linked transfer leg voided")

	out = mustRun(t, app, "show", "PETTY-2024-000001")
	assert.Regexp(t, `Status\s+void`, out)
	out = mustRun(t, app, "balance", "MAIN")
	assert.Contains(t, out, "100.00")
}

func TestClosedPeriodRejectsDrafts(t *testing.T) {
	app := testApp(t)
	mustRun(t, app, "cashbox", "add", "MAIN", "Main", "--opening", "50")
	mustRun(t, app, "draft", "MAIN", "receipt", "25", "--date", "2024-05-10", "--approve")

	out := mustRun(t, app, "close-period", "MAIN", "2024-05")
	assert.Regexp(t, `opening\s+50\.00`, out)
	assert.Regexp(t, `closing\s+75\.00`, out)

	_, err := run(t, app, "draft", "MAIN", "payment", "5", "--date", "2024-05-20")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), "2024-05 is closed")

	_, err = run(t, app, "transfer", "MAIN", "MAIN", "5")
	require.Error(t, err)

	mustRun(t, app, "draft", "MAIN", "payment", "5", "--date", "2024-06-01")

	_, err = run(t, app, "close-period", "MAIN", "2024-05")
	assert.ErrorIs(t, err, core.ErrValidation, "closing twice")
}

func TestRolesLimitCommands(t *testing.T) {
	app := testApp(t)
	mustRun(t, app, "cashbox", "add", "MAIN", "Main", "--opening", "10")

	_, err := run(t, app, "--role", "cashier", "cashbox", "add", "SIDE", "Side")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	mustRun(t, app, "--role", "cashier", "--user", "7", "draft", "MAIN", "receipt", "1")
	_, err = run(t, app, "--role", "cashier", "approve", "MAIN-2024-000001")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	mustRun(t, app, "--role", "approver", "approve", "MAIN-2024-000001")

	_, err = run(t, app, "--role", "auditor", "draft", "MAIN", "receipt", "1")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	mustRun(t, app, "--role", "auditor", "balance")

	_, err = run(t, app, "--role", "owner", "balance")
	require.Error(t, err, "unknown role is rejected by the parser")
}

func TestReferenceDataCommands(t *testing.T) {
	app := testApp(t)
	mustRun(t, app, "category", "add", "FOOD", "Food")
	mustRun(t, app, "category", "add", "SALES", "Sales", "--kind", "income")
	mustRun(t, app, "partner", "add", "ACME", "Acme Ltd", "--kind", "supplier", "--email", "ap@acme.test")

	out := mustRun(t, app, "category", "list", "--kind", "income")
	assert.Contains(t, out, "SALES")
	assert.NotContains(t, out, "FOOD")

	_, err := run(t, app, "category", "list", "--kind", "gift")
	assert.ErrorIs(t, err, core.ErrValidation)

	out = mustRun(t, app, "partner", "list")
	assert.Contains(t, out, "ap@acme.test")

	mustRun(t, app, "cashbox", "add", "OLD", "Old box")
	mustRun(t, app, "cashbox", "deactivate", "OLD")
	out = mustRun(t, app, "cashbox", "list")
	assert.NotContains(t, out, "OLD")
	out = mustRun(t, app, "cashbox", "list", "--all")
	assert.Contains(t, out, "OLD")
}

func TestVoucherCommandConsumesNumber(t *testing.T) {
	app := testApp(t)
	mustRun(t, app, "cashbox", "add", "MAIN", "Main")

	out := mustRun(t, app, "voucher", "MAIN")
	assert.Equal(t, "MAIN-2024-000001\n", out)

	out = mustRun(t, app, "draft", "MAIN", "receipt", "3")
	assert.Contains(t, out, "MAIN-2024-000002")
}

func TestErrorTypeAndExitCode(t *testing.T) {
	tests := []struct {
		err      error
		wantType string
		wantCode int
	}{
		{nil, "", 0},
		{&core.ValidationError{Field: "amount", Reason: "bad"}, applog.ErrorTypeValidation, 2},
		{fmt.Errorf("wrapped: %w", core.NotFound("cashbox", 3)), applog.ErrorTypeNotFound, 2},
		{&core.PermissionError{ActorID: 1, Permission: core.PermApprove}, applog.ErrorTypePermission, 2},
		{&core.InvalidTransitionError{From: core.StatusVoid, To: core.StatusApproved}, applog.ErrorTypeTransition, 2},
		{&core.InsufficientFundsError{CashBoxCode: "MAIN"}, applog.ErrorTypeFunds, 2},
		{errors.New("disk I/O error"), applog.ErrorTypeDatabase, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.err), func(t *testing.T) {
			assert.Equal(t, tt.wantType, ErrorType(tt.err))
			assert.Equal(t, tt.wantCode, ExitCode(tt.err))
		})
	}
}

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	tbl := newTable("CODE", "AMOUNT").alignRight(1)
	tbl.add("MAIN", "5.00")
	tbl.add("CAFÉ", "1200.00")
	tbl.render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "MAIN     5.00", lines[1])
	assert.Equal(t, "CAFÉ  1200.00", lines[2])
}

func TestCashboxDefaultsToBaseCurrency(t *testing.T) {
	app := testApp(t)
	app.BaseCurrency = "USD"
	mustRun(t, app, "cashbox", "add", "MAIN", "Main")
	mustRun(t, app, "cashbox", "add", "EU", "Euro box", "--currency", "eur")

	out := mustRun(t, app, "balance")
	assert.Regexp(t, `MAIN\s+Main\s+0\.00\s+USD`, out)
	assert.Regexp(t, `EU\s+Euro box\s+0\.00\s+EUR`, out)
}

func TestAmountsAreNotRounded(t *testing.T) {
	app := testApp(t)
	mustRun(t, app, "cashbox", "add", "MAIN", "Main", "--opening", "100")
	mustRun(t, app, "cashbox", "add", "PETTY", "Petty")

	for _, args := range [][]string{
		{"draft", "MAIN", "receipt", "12.345"},
		{"transfer", "MAIN", "PETTY", "0.005"},
		{"draft", "MAIN", "receipt", "1000000000000000.01"},
	} {
		_, err := run(t, app, args...)
		assert.ErrorIs(t, err, core.ErrInvalidAmount, "cashbook %s", strings.Join(args, " "))
		assert.Equal(t, 2, ExitCode(err))
	}

	out := mustRun(t, app, "list")
	assert.NotContains(t, out, "MAIN-2024")

	out = mustRun(t, app, "draft", "MAIN", "receipt", "12,50")
	assert.Contains(t, out, "12.50")
}
