package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/giftcard"
)

const (
	getGiftcardSQL = `SELECT id, business_id, balance
		FROM giftcards WHERE business_id = $1 AND id = $2`

	// The balance predicate makes the decrement conditional. A concurrent
	// redemption that commits first leaves this statement matching no row.
	redeemGiftcardSQL = `UPDATE giftcards
		SET balance = balance - $3, updated_at = now()
		WHERE business_id = $1 AND id = $2 AND balance >= $3
		RETURNING balance`

	giftcardExistsSQL = `SELECT EXISTS (SELECT 1 FROM giftcards WHERE business_id = $1 AND id = $2)`

	issueGiftcardsSQL = `INSERT INTO giftcards (business_id, id, balance)
		SELECT $1, card.id, card.balance
		FROM unnest($2::text[], $3::numeric[]) AS card(id, balance)
		ON CONFLICT (business_id, id) DO NOTHING`
)

var (
	_ giftcard.Store  = (*GiftcardRepository)(nil)
	_ giftcard.Issuer = (*GiftcardRepository)(nil)
)

// GiftcardRepository implements giftcard.Store and giftcard.Issuer backed by
// PostgreSQL.
type GiftcardRepository struct {
	db Querier
}

// NewGiftcardRepository returns a GiftcardRepository that uses db.
func NewGiftcardRepository(db Querier) *GiftcardRepository {
	return &GiftcardRepository{db: db}
}

// Get returns a giftcard of the business.
func (r *GiftcardRepository) Get(ctx context.Context, businessID, id string) (*giftcard.Card, error) {
	var c giftcard.Card
	err := r.db.QueryRow(ctx, getGiftcardSQL, businessID, id).Scan(&c.ID, &c.BusinessID, &c.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, giftcard.ErrNotFound
		}
		return nil, fmt.Errorf("getting giftcard %q: %w", id, err)
	}
	return &c, nil
}

// TryRedeem decrements the balance by amount if it still covers it.
func (r *GiftcardRepository) TryRedeem(
	ctx context.Context,
	businessID, id string,
	amount decimal.Decimal,
) (giftcard.Redemption, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, redeemGiftcardSQL, businessID, id, amount).Scan(&balance)
	if err == nil {
		return giftcard.Redemption{Applied: amount, NewBalance: balance}, nil
	}
	if txConflict(err) {
		return giftcard.Redemption{}, fmt.Errorf("redeeming giftcard %q: %w: %w", id, giftcard.ErrContended, err)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return giftcard.Redemption{}, fmt.Errorf("redeeming giftcard %q: %w", id, err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, giftcardExistsSQL, businessID, id).Scan(&exists); err != nil {
		return giftcard.Redemption{}, fmt.Errorf("checking giftcard %q: %w", id, err)
	}
	if !exists {
		return giftcard.Redemption{}, giftcard.ErrNotFound
	}
	return giftcard.Redemption{}, giftcard.ErrInsufficientBalance
}

// Issue inserts cards for the business in one statement and returns how many
// were created.
func (r *GiftcardRepository) Issue(ctx context.Context, businessID string, cards []giftcard.Card) (int64, error) {
	if len(cards) == 0 {
		return 0, nil
	}

	ids := make([]string, len(cards))
	balances := make([]decimal.Decimal, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
		balances[i] = c.Balance
	}

	tag, err := r.db.Exec(ctx, issueGiftcardsSQL, businessID, ids, balances)
	if err != nil {
		return 0, fmt.Errorf("issuing %d giftcards: %w", len(cards), err)
	}
	return tag.RowsAffected(), nil
}
