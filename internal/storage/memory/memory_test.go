package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
)

func seedBox(t *testing.T, s *Store, code string) core.CashBox {
	t.Helper()
	box := core.CashBox{Code: code, Name: code, Currency: "EGP", Kind: core.BoxMain, Active: true}
	if err := s.InsertCashBox(context.Background(), &box); err != nil {
		t.Fatalf("insert cashbox: %v", err)
	}
	return box
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	box := seedBox(t, s, "MAIN")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(q ledger.Queries) error {
		txn := core.Transaction{ID: "t1", VoucherNo: "MAIN-2024-000001", CashBoxID: box.ID, Kind: core.KindReceipt, Status: core.StatusDraft}
		if err := q.InsertTransaction(ctx, &txn); err != nil {
			return err
		}
		if _, err := q.NextVoucherSeq(ctx, "MAIN-2024", 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetTransaction(ctx, "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("transaction survived rollback: %v", err)
	}
	seq, err := s.NextVoucherSeq(ctx, "MAIN-2024", 0)
	if err != nil || seq != 1 {
		t.Fatalf("sequence not rolled back: seq=%d err=%v", seq, err)
	}
}

func TestUncommittedWritesInvisible(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedBox(t, s, "MAIN")

	err := s.WithTx(ctx, func(q ledger.Queries) error {
		box := core.CashBox{Code: "PETTY", Name: "Petty", Currency: "EGP", Kind: core.BoxPetty, Active: true}
		if err := q.InsertCashBox(ctx, &box); err != nil {
			return err
		}
		boxes, _ := s.ListCashBoxes(ctx, false)
		if len(boxes) != 1 {
			t.Errorf("outside reader saw %d cashboxes before commit", len(boxes))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	boxes, _ := s.ListCashBoxes(ctx, false)
	if len(boxes) != 2 {
		t.Fatalf("expected 2 cashboxes after commit, got %d", len(boxes))
	}
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	box := seedBox(t, s, "MAIN")

	dup := core.CashBox{Code: "MAIN", Name: "Again", Currency: "EGP", Active: true}
	if err := s.InsertCashBox(ctx, &dup); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("duplicate cashbox code: got %v", err)
	}

	a := core.Transaction{ID: "a", VoucherNo: "MAIN-2024-000001", CashBoxID: box.ID}
	b := core.Transaction{ID: "b", VoucherNo: "MAIN-2024-000001", CashBoxID: box.ID}
	if err := s.InsertTransaction(ctx, &a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertTransaction(ctx, &b); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("duplicate voucher: got %v", err)
	}
}

func TestMaxVoucherAndSequence(t *testing.T) {
	ctx := context.Background()
	s := New()
	box := seedBox(t, s, "MAIN")

	for i, v := range []string{"MAIN-2024-000009", "MAIN-2024-000010", "MAIN-2024-PV-000050", "MAIN-2023-000099"} {
		txn := core.Transaction{ID: string(rune('a' + i)), VoucherNo: v, CashBoxID: box.ID}
		if err := s.InsertTransaction(ctx, &txn); err != nil {
			t.Fatalf("insert %s: %v", v, err)
		}
	}

	got, err := s.MaxVoucher(ctx, "MAIN-2024")
	if err != nil || got != "MAIN-2024-000010" {
		t.Fatalf("MaxVoucher = %q, %v", got, err)
	}
	if got, _ := s.MaxVoucher(ctx, "PETTY-2024"); got != "" {
		t.Fatalf("expected empty scope, got %q", got)
	}

	seq, _ := s.NextVoucherSeq(ctx, "MAIN-2024", 10)
	if seq != 11 {
		t.Fatalf("first seq = %d, want 11", seq)
	}
	seq, _ = s.NextVoucherSeq(ctx, "MAIN-2024", 3)
	if seq != 12 {
		t.Fatalf("second seq = %d, want 12", seq)
	}
}

func TestSumApproved(t *testing.T) {
	ctx := context.Background()
	s := New()
	box := seedBox(t, s, "MAIN")
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	rows := []core.Transaction{
		{ID: "1", VoucherNo: "V1", Kind: core.KindReceipt, Status: core.StatusApproved, Date: day(1), Amount: decimal.NewFromInt(500)},
		{ID: "2", VoucherNo: "V2", Kind: core.KindPayment, Status: core.StatusApproved, Date: day(5), Amount: decimal.NewFromInt(120)},
		{ID: "3", VoucherNo: "V3", Kind: core.KindPayment, Status: core.StatusDraft, Date: day(5), Amount: decimal.NewFromInt(999)},
		{ID: "4", VoucherNo: "V4", Kind: core.KindTransferIn, Status: core.StatusApproved, Date: day(20), Amount: decimal.NewFromInt(30)},
		{ID: "5", VoucherNo: "V5", Kind: core.KindReceipt, Status: core.StatusVoid, Date: day(20), Amount: decimal.NewFromInt(1000)},
	}
	for i := range rows {
		rows[i].CashBoxID = box.ID
		if err := s.InsertTransaction(ctx, &rows[i]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	all, _ := s.SumApproved(ctx, box.ID, core.DateRange{})
	if !all.Net().Equal(decimal.NewFromInt(410)) {
		t.Fatalf("net = %s, want 410", all.Net())
	}
	early, _ := s.SumApproved(ctx, box.ID, core.DateRange{To: day(10)})
	if !early.Inflow().Equal(decimal.NewFromInt(500)) || !early.Outflow().Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected early flows: %+v", early)
	}
}
