package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/pos-checkout/internal/domain/pricing"
)

// NewStores returns the pricing stores backed by db.
func NewStores(db Querier) pricing.Stores {
	return pricing.Stores{
		Catalog:   NewVariationRepository(db),
		Discounts: NewDiscountRepository(db),
		Giftcards: NewGiftcardRepository(db),
		Taxes:     NewBusinessRepository(db),
		Orders:    NewOrderRepository(db),
	}
}

var _ pricing.Transactor = (*Transactor)(nil)

// Transactor runs checkout commits in read committed transactions.
type Transactor struct {
	pool DBPool
}

// NewTransactor returns a Transactor that begins transactions on pool.
func NewTransactor(pool DBPool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx begins a transaction, runs fn with stores bound to it and commits
// when fn succeeds. Any error rolls the transaction back.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, st pricing.Stores) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, NewStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
