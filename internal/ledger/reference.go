package ledger

import (
	"context"
	"fmt"
	"strconv"

	"cashbook/internal/cache"
	"cashbook/internal/core"
	applog "cashbook/internal/log"
)

// CreateCashBox registers a new cashbox. Its opening balance is fixed from
// here on.
func (l *Ledger) CreateCashBox(ctx context.Context, actor core.Actor, box core.CashBox) (core.CashBox, error) {
	if err := actor.Require(core.PermManageSetup); err != nil {
		return core.CashBox{}, err
	}
	if box.Kind == "" {
		box.Kind = core.BoxMain
	}
	if err := box.Validate(); err != nil {
		return core.CashBox{}, err
	}
	now := l.now().UTC()
	box.Active = true
	box.CreatedAt, box.UpdatedAt = now, now
	if err := l.store.InsertCashBox(ctx, &box); err != nil {
		return core.CashBox{}, err
	}
	l.logger.InfoContext(ctx, "Cashbox created",
		applog.FieldOperation, applog.OpSetup,
		applog.FieldCashBox, box.ID,
		applog.FieldCode, box.Code)
	return box, nil
}

// DeactivateCashBox stops new drafts and transfers against a cashbox.
// History and balance are unaffected.
func (l *Ledger) DeactivateCashBox(ctx context.Context, actor core.Actor, id int64) error {
	if err := actor.Require(core.PermManageSetup); err != nil {
		return err
	}
	return l.store.WithTx(ctx, func(q Queries) error {
		if _, err := q.GetCashBox(ctx, id); err != nil {
			return err
		}
		return q.SetCashBoxActive(ctx, id, false)
	})
}

func (l *Ledger) CashBox(ctx context.Context, id int64) (core.CashBox, error) {
	return l.store.GetCashBox(ctx, id)
}

func (l *Ledger) CashBoxByCode(ctx context.Context, code string) (core.CashBox, error) {
	return l.store.GetCashBoxByCode(ctx, code)
}

func (l *Ledger) CashBoxes(ctx context.Context, activeOnly bool) ([]core.CashBox, error) {
	return l.store.ListCashBoxes(ctx, activeOnly)
}

// CreateCategory registers a category. A parent must exist and must not
// itself have a parent.
func (l *Ledger) CreateCategory(ctx context.Context, actor core.Actor, cat core.Category) (core.Category, error) {
	if err := actor.Require(core.PermManageSetup); err != nil {
		return core.Category{}, err
	}
	if err := cat.Validate(); err != nil {
		return core.Category{}, err
	}
	cat.Active = true
	err := l.store.WithTx(ctx, func(q Queries) error {
		if cat.ParentID != nil {
			parent, err := q.GetCategory(ctx, *cat.ParentID)
			if err != nil {
				return err
			}
			if parent.ParentID != nil {
				return &core.ValidationError{Field: "parent", Reason: fmt.Sprintf("category %s is already a child category", parent.Code)}
			}
		}
		return q.InsertCategory(ctx, &cat)
	})
	if err != nil {
		return core.Category{}, err
	}
	return cat, nil
}

func (l *Ledger) Categories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error) {
	return l.store.ListCategories(ctx, kind)
}

func (l *Ledger) CreatePartner(ctx context.Context, actor core.Actor, p core.Partner) (core.Partner, error) {
	if err := actor.Require(core.PermManageSetup); err != nil {
		return core.Partner{}, err
	}
	if p.Kind == "" {
		p.Kind = core.PartnerOther
	}
	if err := p.Validate(); err != nil {
		return core.Partner{}, err
	}
	p.Active = true
	if err := l.store.InsertPartner(ctx, &p); err != nil {
		return core.Partner{}, err
	}
	return p, nil
}

func (l *Ledger) Partners(ctx context.Context) ([]core.Partner, error) {
	return l.store.ListPartners(ctx)
}

func (l *Ledger) category(ctx context.Context, q Queries, id int64) (core.Category, error) {
	return cache.GetOrLoad(l.categories, strconv.FormatInt(id, 10), func() (core.Category, error) {
		return q.GetCategory(ctx, id)
	})
}

func (l *Ledger) partner(ctx context.Context, q Queries, id int64) (core.Partner, error) {
	return cache.GetOrLoad(l.partners, strconv.FormatInt(id, 10), func() (core.Partner, error) {
		return q.GetPartner(ctx, id)
	})
}
