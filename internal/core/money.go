// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals carried at two decimal places. Storage
// layers that prefer integers convert through ToCents and FromCents.
package core

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// MaxAmount bounds every amount the ledger accepts, so that amounts
	// and the balances built from them fit in int64 cents.
	MaxAmount = decimal.New(1, 15)

	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ParseAmount converts a decimal string to a positive amount with at most
// two decimal places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// thousands separators, zero, sub-cent precision and amounts above
// MaxAmount are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.50")  -> 12.5, nil
//	ParseAmount("12.345") -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() || !HasCents(d) || d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseRate parses an exchange rate. Up to six decimal places are kept.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidRate
	}
	return d.Round(6), nil
}

// ValidateAmount checks the transaction amount invariant: strictly positive,
// at most two decimal places and no larger than MaxAmount.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero", Err: ErrInvalidAmount}
	}
	if !HasCents(d) {
		return &ValidationError{Field: "amount", Reason: "at most 2 decimal places", Err: ErrInvalidAmount}
	}
	if d.GreaterThan(MaxAmount) {
		return &ValidationError{Field: "amount", Reason: "exceeds " + MaxAmount.String(), Err: ErrInvalidAmount}
	}
	return nil
}

// HasCents reports whether d has no precision beyond two decimal places.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// ToCents converts an amount to integer minor units. Callers validate
// precision first; anything beyond cents is rounded half-up. Amounts that
// do not fit in int64 cents are an error, never truncated.
func ToCents(d decimal.Decimal) (int64, error) {
	c := d.Round(2).Mul(hundred)
	if c.GreaterThan(maxCents) || c.LessThan(minCents) {
		return 0, &ValidationError{Field: "amount", Reason: fmt.Sprintf("%s does not fit in cents", d.String()), Err: ErrInvalidAmount}
	}
	return c.IntPart(), nil
}

// FromCents converts integer minor units back to a two-place amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// BaseAmount converts amount into the base currency using rate.
func BaseAmount(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}
