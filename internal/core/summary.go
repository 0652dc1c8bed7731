package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is an inclusive range of calendar days. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	d = DateOnly(d)
	if !r.From.IsZero() && d.Before(DateOnly(r.From)) {
		return false
	}
	if !r.To.IsZero() && d.After(DateOnly(r.To)) {
		return false
	}
	return true
}

// Flows are approved totals per transaction kind.
type Flows struct {
	Receipts     decimal.Decimal
	Payments     decimal.Decimal
	TransfersIn  decimal.Decimal
	TransfersOut decimal.Decimal
}

// Add accumulates an approved transaction into the totals.
func (f *Flows) Add(kind Kind, amount decimal.Decimal) {
	switch kind {
	case KindReceipt:
		f.Receipts = f.Receipts.Add(amount)
	case KindPayment:
		f.Payments = f.Payments.Add(amount)
	case KindTransferIn:
		f.TransfersIn = f.TransfersIn.Add(amount)
	case KindTransferOut:
		f.TransfersOut = f.TransfersOut.Add(amount)
	}
}

// Inflow is receipts plus incoming transfers.
func (f Flows) Inflow() decimal.Decimal {
	return f.Receipts.Add(f.TransfersIn)
}

// Outflow is payments plus outgoing transfers.
func (f Flows) Outflow() decimal.Decimal {
	return f.Payments.Add(f.TransfersOut)
}

// Net is inflow minus outflow.
func (f Flows) Net() decimal.Decimal {
	return f.Inflow().Sub(f.Outflow())
}
