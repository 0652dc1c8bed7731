package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/cache"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	applog "cashbook/internal/log"
)

// Recorder persists audit events somewhere durable.
type Recorder interface {
	Record(ctx context.Context, e core.AuditEvent) error
}

// AuditWorker consumes audit events published by the ledger, drops
// redeliveries and hands each event to a Recorder. It also takes periodic
// balance snapshots of every active cashbox.
type AuditWorker struct {
	ledger   *ledger.Ledger
	recorder Recorder
	seen     cache.Cache[struct{}]
	logger   *applog.Logger
}

func NewAuditWorker(l *ledger.Ledger, recorder Recorder, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.Discard(applog.ComponentWorker)
	}
	return &AuditWorker{
		ledger:   l,
		recorder: recorder,
		seen:     cache.NewLRUCache[struct{}](4096, time.Hour),
		logger:   logger,
	}
}

func eventKey(e core.AuditEvent) string {
	return e.Action + "|" + e.TransactionID + "|" + strconv.FormatInt(e.CashBoxID, 10) + "|" + e.At.UTC().Format(time.RFC3339Nano)
}

// HandleAuditMessage processes a single audit message from AMQP. Returning
// an error requeues the message.
func (w *AuditWorker) HandleAuditMessage(ctx context.Context, msg *amqp.AuditMessage) error {
	e := msg.Event
	key := eventKey(e)
	if _, dup := w.seen.Get(key); dup {
		w.logger.DebugContext(ctx, "Skipping redelivered audit event",
			applog.FieldAction, e.Action,
			applog.FieldTransactionID, e.TransactionID)
		return nil
	}

	if e.TransactionID != "" {
		txn, err := w.ledger.Transaction(ctx, e.TransactionID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			// Event for a row this store does not know; record it anyway.
			w.logger.WarnContext(ctx, "Audit event references unknown transaction",
				applog.FieldAction, e.Action,
				applog.FieldTransactionID, e.TransactionID)
		case err != nil:
			return fmt.Errorf("load transaction: %w", err)
		case e.Action == core.AuditVoid && txn.Status != core.StatusVoid:
			w.logger.ErrorContext(ctx, "Void event for a transaction that is not void",
				applog.FieldTransactionID, txn.ID,
				applog.FieldVoucherNo, txn.VoucherNo,
				applog.FieldStatus, string(txn.Status))
		}
	}

	if err := w.recorder.Record(ctx, e); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	w.seen.Set(key, struct{}{})

	w.logger.InfoContext(ctx, "Recorded audit event",
		applog.FieldOperation, applog.OpConsume,
		applog.FieldAction, e.Action,
		applog.FieldVoucherNo, e.VoucherNo,
		applog.FieldActor, e.Actor)
	return nil
}

// BalanceSnapshot is one line of a periodic balance report.
type BalanceSnapshot struct {
	CashBoxID int64
	Code      string
	Currency  string
	Balance   string
}

// SnapshotBalances computes the derived balance of every active cashbox.
func (w *AuditWorker) SnapshotBalances(ctx context.Context) ([]BalanceSnapshot, error) {
	boxes, err := w.ledger.CashBoxes(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list cashboxes: %w", err)
	}

	out := make([]BalanceSnapshot, 0, len(boxes))
	for _, box := range boxes {
		bal, err := w.ledger.Balance(ctx, box.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to compute balance",
				applog.FieldCashBox, box.ID,
				applog.FieldError, err)
			continue
		}
		snap := BalanceSnapshot{CashBoxID: box.ID, Code: box.Code, Currency: box.Currency, Balance: core.FormatAmount(bal)}
		out = append(out, snap)
		w.logger.InfoContext(ctx, "Balance snapshot",
			applog.FieldOperation, applog.OpBalance,
			applog.FieldCashBox, box.ID,
			applog.FieldCode, box.Code,
			applog.FieldAmount, snap.Balance)
	}
	return out, nil
}

// Run consumes from the client until ctx is done, taking a balance snapshot
// every interval. A non-positive interval disables snapshots.
func (w *AuditWorker) Run(ctx context.Context, client *amqp.Client, interval time.Duration) error {
	if interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := w.SnapshotBalances(ctx); err != nil {
						w.logger.ErrorContext(ctx, "Periodic balance snapshot failed", applog.FieldError, err)
					}
				}
			}
		}()
	}
	return client.ConsumeAuditEvents(ctx, w.HandleAuditMessage)
}

// FileRecorder appends events as JSON lines to a journal file.
type FileRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	return &FileRecorder{file: f, enc: json.NewEncoder(f)}, nil
}

func (r *FileRecorder) Record(_ context.Context, e core.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(e); err != nil {
		return err
	}
	return r.file.Sync()
}

func (r *FileRecorder) Close() error {
	return r.file.Close()
}

// LogRecorder writes events to the structured log only.
type LogRecorder struct {
	Logger *applog.Logger
}

func (r LogRecorder) Record(ctx context.Context, e core.AuditEvent) error {
	return ledger.LogSink{Logger: r.Logger}.Emit(ctx, e)
}
