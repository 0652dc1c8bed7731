package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindReceipt     Kind = "receipt"
	KindPayment     Kind = "payment"
	KindTransferOut Kind = "transfer_out"
	KindTransferIn  Kind = "transfer_in"
)

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusVoid     Status = "void"
)

const (
	CategoryIncome   CategoryKind = "income"
	CategoryExpense  CategoryKind = "expense"
	CategoryTransfer CategoryKind = "transfer"
)

const (
	PartnerCustomer PartnerKind = "customer"
	PartnerSupplier PartnerKind = "supplier"
	PartnerEmployee PartnerKind = "employee"
	PartnerOther    PartnerKind = "other"
)

const (
	BoxMain   BoxKind = "main"
	BoxBranch BoxKind = "branch"
	BoxPetty  BoxKind = "petty"
)

// MaxDescriptionLen bounds free-text descriptions on transactions.
const MaxDescriptionLen = 500

type (
	// Kind is the direction of a transaction. Amounts are always positive.
	Kind string

	// Status is the lifecycle state of a transaction.
	Status string

	CategoryKind string
	PartnerKind  string
	BoxKind      string

	CashBox struct {
		ID             int64
		Code           string
		Name           string
		Currency       string
		OpeningBalance decimal.Decimal
		Kind           BoxKind
		Active         bool
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	Category struct {
		ID       int64
		Code     string
		Name     string
		Kind     CategoryKind
		ParentID *int64
		Active   bool
	}

	Partner struct {
		ID     int64
		Code   string
		Name   string
		Kind   PartnerKind
		Phone  string
		Email  string
		Notes  string
		Active bool
	}

	Transaction struct {
		ID          string
		VoucherNo   string
		CashBoxID   int64
		Kind        Kind
		Status      Status
		Date        time.Time
		Amount      decimal.Decimal
		Currency    string
		Rate        decimal.Decimal // rate to base currency
		AmountBase  decimal.Decimal
		CategoryID  *int64
		PartnerID   *int64
		Description string
		ReferenceNo string
		ProjectCode string
		CostCenter  string
		LinkedTxnID string // counterpart leg of a transfer pair
		CreatedBy   int64
		ApprovedBy  *int64
		ApprovedAt  *time.Time
		VoidedBy    *int64
		VoidedAt    *time.Time
		VoidReason  string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	PeriodClose struct {
		ID                int64
		CashBoxID         int64
		Year              int
		Month             int // 1-12
		OpeningBalance    decimal.Decimal
		ClosingBalance    decimal.Decimal
		TotalReceipts     decimal.Decimal
		TotalPayments     decimal.Decimal
		TotalTransfersIn  decimal.Decimal
		TotalTransfersOut decimal.Decimal
		ClosedBy          int64
		ClosedAt          time.Time
		Notes             string
	}
)

var (
	codePattern     = regexp.MustCompile(`^[A-Z0-9_]{1,10}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Valid reports whether k is one of the four transaction kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindReceipt, KindPayment, KindTransferOut, KindTransferIn:
		return true
	}
	return false
}

// Inflow reports whether k increases the cashbox balance.
func (k Kind) Inflow() bool {
	return k == KindReceipt || k == KindTransferIn
}

// Outflow reports whether k decreases the cashbox balance.
func (k Kind) Outflow() bool {
	return k == KindPayment || k == KindTransferOut
}

// IsTransfer reports whether k is one leg of a transfer pair.
func (k Kind) IsTransfer() bool {
	return k == KindTransferOut || k == KindTransferIn
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusVoid:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// void is terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusApproved || next == StatusVoid
	case StatusApproved:
		return next == StatusVoid
	}
	return false
}

func (k CategoryKind) Valid() bool {
	switch k {
	case CategoryIncome, CategoryExpense, CategoryTransfer:
		return true
	}
	return false
}

// Matches reports whether a category of kind k is a natural fit for a
// transaction of kind tk.
func (k CategoryKind) Matches(tk Kind) bool {
	switch k {
	case CategoryIncome:
		return tk == KindReceipt
	case CategoryExpense:
		return tk == KindPayment
	case CategoryTransfer:
		return tk.IsTransfer()
	}
	return false
}

func (k PartnerKind) Valid() bool {
	switch k {
	case PartnerCustomer, PartnerSupplier, PartnerEmployee, PartnerOther:
		return true
	}
	return false
}

func (k BoxKind) Valid() bool {
	switch k {
	case BoxMain, BoxBranch, BoxPetty:
		return true
	}
	return false
}

// ValidateCode checks a reference-data code (cashbox, category, partner).
func ValidateCode(field, code string) error {
	if !codePattern.MatchString(code) {
		return &ValidationError{Field: field, Reason: "must be 1-10 characters of A-Z, 0-9 or _"}
	}
	return nil
}

// ValidateCurrency checks an ISO-4217 style currency code.
func ValidateCurrency(currency string) error {
	if !currencyPattern.MatchString(currency) {
		return &ValidationError{Field: "currency", Reason: fmt.Sprintf("invalid currency code %q", currency)}
	}
	return nil
}

func (c CashBox) Validate() error {
	if err := ValidateCode("code", c.Code); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if err := ValidateCurrency(c.Currency); err != nil {
		return err
	}
	if c.OpeningBalance.IsNegative() {
		return &ValidationError{Field: "opening_balance", Reason: "cannot be negative"}
	}
	if !HasCents(c.OpeningBalance) {
		return &ValidationError{Field: "opening_balance", Reason: "at most 2 decimal places"}
	}
	if c.OpeningBalance.GreaterThan(MaxAmount) {
		return &ValidationError{Field: "opening_balance", Reason: "exceeds " + MaxAmount.String(), Err: ErrInvalidAmount}
	}
	if c.Kind != "" && !c.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown cashbox kind %q", c.Kind)}
	}
	return nil
}

func (c Category) Validate() error {
	if err := ValidateCode("code", c.Code); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if !c.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown category kind %q", c.Kind)}
	}
	return nil
}

func (p Partner) Validate() error {
	if err := ValidateCode("code", p.Code); err != nil {
		return err
	}
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if !p.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown partner kind %q", p.Kind)}
	}
	return nil
}

// IsLinked reports whether t is one leg of a transfer pair.
func (t Transaction) IsLinked() bool {
	return t.LinkedTxnID != ""
}

// Signed returns the amount with the sign implied by the kind. Only used for
// presentation; stored amounts stay positive.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind.Outflow() {
		return t.Amount.Neg()
	}
	return t.Amount
}

// MonthRange returns the first and last day of the given month.
func MonthRange(year, month int) DateRange {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return DateRange{From: from, To: from.AddDate(0, 1, -1)}
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
