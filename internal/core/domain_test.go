package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusApproved, true},
		{StatusDraft, StatusVoid, true},
		{StatusApproved, StatusVoid, true},
		{StatusApproved, StatusDraft, false},
		{StatusApproved, StatusApproved, false},
		{StatusVoid, StatusVoid, false},
		{StatusVoid, StatusDraft, false},
		{StatusVoid, StatusApproved, false},
		{StatusDraft, StatusDraft, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestKindDirection(t *testing.T) {
	for _, k := range []Kind{KindReceipt, KindTransferIn} {
		if !k.Inflow() || k.Outflow() {
			t.Fatalf("%s should be an inflow", k)
		}
	}
	for _, k := range []Kind{KindPayment, KindTransferOut} {
		if !k.Outflow() || k.Inflow() {
			t.Fatalf("%s should be an outflow", k)
		}
	}
	if Kind("refund").Valid() {
		t.Fatalf("unexpected valid kind")
	}
}

func TestCategoryKindMatches(t *testing.T) {
	if !CategoryIncome.Matches(KindReceipt) || CategoryIncome.Matches(KindPayment) {
		t.Fatalf("income should only match receipts")
	}
	if !CategoryExpense.Matches(KindPayment) {
		t.Fatalf("expense should match payments")
	}
	if !CategoryTransfer.Matches(KindTransferIn) || !CategoryTransfer.Matches(KindTransferOut) {
		t.Fatalf("transfer should match both legs")
	}
}

func TestCashBoxValidate(t *testing.T) {
	good := CashBox{Code: "MAIN", Name: "Main box", Currency: "EGP", OpeningBalance: decimal.NewFromInt(1000)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []CashBox{
		{Code: "", Name: "x", Currency: "EGP"},
		{Code: "main", Name: "x", Currency: "EGP"},
		{Code: "TOOLONGCODE1", Name: "x", Currency: "EGP"},
		{Code: "MAIN", Name: " ", Currency: "EGP"},
		{Code: "MAIN", Name: "x", Currency: "egp"},
		{Code: "MAIN", Name: "x", Currency: "EGP", OpeningBalance: decimal.NewFromInt(-1)},
		{Code: "MAIN", Name: "x", Currency: "EGP", OpeningBalance: decimal.RequireFromString("1.001")},
		{Code: "MAIN", Name: "x", Currency: "EGP", Kind: "vault"},
	}
	for i, c := range bads {
		if err := c.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestCategoryAndPartnerValidate(t *testing.T) {
	if err := (Category{Code: "SALES", Name: "Sales", Kind: CategoryIncome}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Code: "SALES", Name: "Sales", Kind: "other"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if err := (Partner{Code: "ACME", Name: "Acme", Kind: PartnerSupplier}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Partner{Code: "ACME", Name: "", Kind: PartnerSupplier}).Validate(); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestDateRangeContains(t *testing.T) {
	r := MonthRange(2024, 2)
	if !r.To.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected leap-year end, got %v", r.To)
	}
	if !r.Contains(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("last day should be inside")
	}
	if r.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("next month should be outside")
	}
	if !(DateRange{}).Contains(time.Now()) {
		t.Fatalf("open range should contain everything")
	}
}

func TestActorPermissions(t *testing.T) {
	cashier := Actor{ID: 7, Permissions: Roles["cashier"]}
	if !cashier.Can(PermCreateDraft) || cashier.Can(PermApprove) {
		t.Fatalf("cashier permissions wrong: %s", cashier.Permissions)
	}
	err := cashier.Require(PermApprove)
	var perr *PermissionError
	if !errors.As(err, &perr) || perr.ActorID != 7 || !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if _, err := RolePermissions("janitor"); err == nil {
		t.Fatalf("expected unknown role error")
	}
	if p, _ := RolePermissions(" Admin "); p != PermAll {
		t.Fatalf("admin should hold every permission, got %s", p)
	}
}

func TestFlows(t *testing.T) {
	var f Flows
	f.Add(KindReceipt, decimal.NewFromInt(500))
	f.Add(KindTransferIn, decimal.NewFromInt(300))
	f.Add(KindPayment, decimal.NewFromInt(200))
	f.Add(KindTransferOut, decimal.NewFromInt(100))
	if !f.Net().Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected net 500, got %s", f.Net())
	}
}
