// Package ledger is the cash-ledger core: voucher numbering, derived
// balances, the draft/approved/void lifecycle and atomic transfer pairs.
//
// Every mutating operation takes an explicit core.Actor and runs inside a
// single Store transaction. Audit events are emitted only after commit.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cashbook/internal/cache"
	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

// Kind tags appended to the voucher scope when Options.KindTags is set.
var kindTags = map[core.Kind]string{
	core.KindReceipt:     "RV",
	core.KindPayment:     "PV",
	core.KindTransferOut: "TO",
	core.KindTransferIn:  "TI",
}

// Options configures a Ledger. The zero value is usable.
type Options struct {
	// AuditSink receives events after commit. Nil disables auditing.
	AuditSink AuditSink
	Logger    *applog.Logger
	// Clock defaults to time.Now. The voucher year is taken from it.
	Clock func() time.Time
	// KindTags suffixes voucher scopes with a per-kind tag (MAIN-2024-PV).
	KindTags bool
	// StrictCategoryKinds rejects drafts whose category kind does not
	// match the transaction kind (income/receipt, expense/payment).
	StrictCategoryKinds bool
	// CacheSize and CacheTTL size the category and partner cache.
	// A zero CacheSize disables caching.
	CacheSize int
	CacheTTL  time.Duration
}

type Ledger struct {
	store       Store
	audit       AuditSink
	logger      *applog.Logger
	now         func() time.Time
	newID       func() string
	kindTags    bool
	strictKinds bool
	categories  cache.Cache[core.Category]
	partners    cache.Cache[core.Partner]
}

func New(store Store, opts Options) *Ledger {
	l := &Ledger{
		store:       store,
		audit:       opts.AuditSink,
		logger:      opts.Logger,
		now:         opts.Clock,
		newID:       func() string { return uuid.NewString() },
		kindTags:    opts.KindTags,
		strictKinds: opts.StrictCategoryKinds,
	}
	if l.logger == nil {
		l.logger = applog.Discard(applog.ComponentLedger)
	}
	if l.now == nil {
		l.now = time.Now
	}
	if opts.CacheSize > 0 {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		l.categories = cache.NewLRUCache[core.Category](opts.CacheSize, ttl)
		l.partners = cache.NewLRUCache[core.Partner](opts.CacheSize, ttl)
	}
	return l
}

// Store exposes the underlying store for read-only collaborators.
func (l *Ledger) Store() Store {
	return l.store
}

// inTx runs fn inside one store transaction and emits the events it
// collected once the transaction has committed.
func (l *Ledger) inTx(ctx context.Context, fn func(q Queries, events *[]core.AuditEvent) error) error {
	var events []core.AuditEvent
	err := l.store.WithTx(ctx, func(q Queries) error {
		events = events[:0]
		return fn(q, &events)
	})
	if err != nil {
		return err
	}
	l.emit(ctx, events)
	return nil
}

func (l *Ledger) event(action string, t core.Transaction, old core.Status, actor core.Actor) core.AuditEvent {
	return core.AuditEvent{
		Action:        action,
		TransactionID: t.ID,
		VoucherNo:     t.VoucherNo,
		CashBoxID:     t.CashBoxID,
		OldStatus:     old,
		NewStatus:     t.Status,
		Actor:         actor.ID,
		Reason:        t.VoidReason,
		At:            l.now().UTC(),
	}
}
