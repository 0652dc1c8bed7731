package ledger

import (
	"context"

	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

// AuditSink receives ledger events after the state change they describe
// has committed.
type AuditSink interface {
	Emit(ctx context.Context, e core.AuditEvent) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, e core.AuditEvent) error

func (f AuditSinkFunc) Emit(ctx context.Context, e core.AuditEvent) error {
	return f(ctx, e)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *applog.Logger
}

func (s LogSink) Emit(ctx context.Context, e core.AuditEvent) error {
	s.Logger.InfoContext(ctx, "Ledger audit event",
		applog.FieldAction, e.Action,
		applog.FieldTransactionID, e.TransactionID,
		applog.FieldVoucherNo, e.VoucherNo,
		applog.FieldOldStatus, string(e.OldStatus),
		applog.FieldStatus, string(e.NewStatus),
		applog.FieldActor, e.Actor)
	return nil
}

// emit hands events to the sink. A failing sink never fails the operation:
// the state change has already committed.
func (l *Ledger) emit(ctx context.Context, events []core.AuditEvent) {
	if l.audit == nil {
		return
	}
	for _, e := range events {
		if err := l.audit.Emit(ctx, e); err != nil {
			l.logger.ErrorContext(ctx, "Failed to emit audit event",
				applog.FieldAction, e.Action,
				applog.FieldTransactionID, e.TransactionID,
				applog.FieldError, err)
		}
	}
}
