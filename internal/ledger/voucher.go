package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

const voucherDigits = 6

// VoucherScope builds the numbering scope "<code>-<year>[-<tag>]".
func VoucherScope(code string, year int, tag string) string {
	scope := fmt.Sprintf("%s-%d", code, year)
	if tag != "" {
		scope += "-" + tag
	}
	return scope
}

// FormatVoucher renders a voucher number such as MAIN-2024-000042.
func FormatVoucher(scope string, seq int64) string {
	return fmt.Sprintf("%s-%0*d", scope, voucherDigits, seq)
}

// VoucherSeq extracts the trailing sequence of a voucher number. It returns
// 0 for an empty or malformed number.
func VoucherSeq(voucher string) int64 {
	i := strings.LastIndexByte(voucher, '-')
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseInt(voucher[i+1:], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NextVoucher allocates the next voucher number for a cashbox and kind.
// The number is consumed even if the caller never uses it.
func (l *Ledger) NextVoucher(ctx context.Context, cashboxID int64, kind core.Kind) (string, error) {
	if kind != "" && !kind.Valid() {
		return "", &core.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind), Err: core.ErrInvalidKind}
	}
	var voucher string
	err := l.store.WithTx(ctx, func(q Queries) error {
		box, err := q.GetCashBox(ctx, cashboxID)
		if err != nil {
			return err
		}
		voucher, err = l.allocateVoucher(ctx, q, box, kind)
		return err
	})
	if err != nil {
		return "", err
	}
	return voucher, nil
}

// allocateVoucher must run inside the caller's store transaction so that
// the allocation commits or rolls back with the rows that use it.
func (l *Ledger) allocateVoucher(ctx context.Context, q Queries, box core.CashBox, kind core.Kind) (string, error) {
	tag := ""
	if l.kindTags {
		tag = kindTags[kind]
	}
	scope := VoucherScope(box.Code, l.now().Year(), tag)

	highest, err := q.MaxVoucher(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("find highest voucher: %w", err)
	}
	seq, err := q.NextVoucherSeq(ctx, scope, VoucherSeq(highest))
	if err != nil {
		return "", fmt.Errorf("allocate voucher sequence: %w", err)
	}

	voucher := FormatVoucher(scope, seq)
	l.logger.DebugContext(ctx, "Allocated voucher",
		applog.FieldScope, scope,
		applog.FieldVoucherNo, voucher)
	return voucher, nil
}
