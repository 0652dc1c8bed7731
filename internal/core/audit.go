package core

import "time"

const (
	AuditCreate      = "create"
	AuditApprove     = "approve"
	AuditVoid        = "void"
	AuditTransfer    = "transfer"
	AuditClosePeriod = "close_period"
)

// AuditEvent is emitted by the ledger after a state change commits.
// Persisting events is the consumer's concern.
type AuditEvent struct {
	Action        string    `json:"action"`
	TransactionID string    `json:"transaction_id,omitempty"`
	VoucherNo     string    `json:"voucher_no,omitempty"`
	CashBoxID     int64     `json:"cashbox_id,omitempty"`
	OldStatus     Status    `json:"old_status,omitempty"`
	NewStatus     Status    `json:"new_status,omitempty"`
	Actor         int64     `json:"actor"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}
