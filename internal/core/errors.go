package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPermissionDenied  = errors.New("permission denied")
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRate   = errors.New("invalid exchange rate")
	ErrInvalidKind   = errors.New("invalid transaction kind")
)

// ValidationError reports a bad request field: amount, kind, missing data.
type ValidationError struct {
	Field  string
	Reason string
	Err    error // optional underlying cause
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown cashbox, category, partner, transaction
// or period.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError for an integer id.
func NotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprintf("%d", id)}
}

// InvalidTransitionError reports an illegal lifecycle change, such as
// approving a void transaction.
type InvalidTransitionError struct {
	TransactionID string
	VoucherNo     string
	From          Status
	To            Status
}

func (e *InvalidTransitionError) Error() string {
	ref := e.VoucherNo
	if ref == "" {
		ref = e.TransactionID
	}
	return fmt.Sprintf("transaction %s: cannot move from %s to %s", ref, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InsufficientFundsError reports that a cashbox balance does not cover an
// outflow at approval or transfer time.
type InsufficientFundsError struct {
	CashBoxCode string
	Balance     decimal.Decimal
	Amount      decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("cashbox %s: balance %s does not cover %s",
		e.CashBoxCode, FormatAmount(e.Balance), FormatAmount(e.Amount))
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// PermissionError reports an actor lacking the permission an operation needs.
type PermissionError struct {
	ActorID    int64
	Permission Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %d lacks permission %s", e.ActorID, e.Permission)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }
