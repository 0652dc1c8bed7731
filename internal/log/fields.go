package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldActor         = "actor"
	FieldTransactionID = "transaction_id"
	FieldVoucherNo     = "voucher_no"
	FieldCashBox       = "cashbox_id"
	FieldKind          = "kind"
	FieldStatus        = "status"
	FieldOldStatus     = "old_status"
	FieldAmount        = "amount"
	FieldYear          = "year"
	FieldMonth         = "month"
	FieldScope         = "scope"
	FieldAction        = "action"
	FieldQueue         = "queue"
	FieldExchange      = "exchange"
	FieldDuration      = "duration_ms"
	FieldErrorType     = "error_type"
	FieldCode          = "code"
	FieldFrom          = "from"
	FieldTo            = "to"
	FieldPeriod        = "period"
	FieldPath          = "path"
	FieldSignal        = "signal"
	FieldReason        = "reason"
	FieldCause         = "cause"

	FieldCounterpartVoucherNo = "counterpart_voucher_no"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpCreateDraft = "create_draft"
	OpApprove     = "approve"
	OpVoid        = "void"
	OpTransfer    = "transfer"
	OpBalance     = "balance"
	OpVoucher     = "next_voucher"
	OpClosePeriod = "close_period"
	OpSetup       = "setup"
	OpPublish     = "publish"
	OpConsume     = "consume"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypePermission    = "permission_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeTransition    = "transition_error"
	ErrorTypeFunds         = "insufficient_funds"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithActor adds the acting user id
func (f LogFields) WithActor(id int64) LogFields {
	f[FieldActor] = id
	return f
}

// WithTransaction adds transaction identity fields
func (f LogFields) WithTransaction(id, voucherNo string, cashboxID int64, kind, status string) LogFields {
	f[FieldTransactionID] = id
	f[FieldVoucherNo] = voucherNo
	f[FieldCashBox] = cashboxID
	f[FieldKind] = kind
	f[FieldStatus] = status
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
