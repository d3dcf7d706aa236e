package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/pos-checkout/internal/domain/discount"
)

const getDiscountByIDSQL = `SELECT id, business_id, name, kind, value, valid_from, valid_until
	FROM discounts WHERE business_id = $1 AND id = $2 AND NOT archived`

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	db Querier
}

// NewDiscountRepository returns a DiscountRepository that uses db.
func NewDiscountRepository(db Querier) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// GetByID looks up an active discount of the business. Archived discounts
// are reported as discount.ErrNotFound.
func (r *DiscountRepository) GetByID(ctx context.Context, businessID, id string) (*discount.Rule, error) {
	rows, err := r.db.Query(ctx, getDiscountByIDSQL, businessID, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanDiscountRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	return &rule, nil
}

func scanDiscountRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		rule discount.Rule
		kind string
	)
	err := row.Scan(
		&rule.ID, &rule.BusinessID, &rule.Name, &kind, &rule.Value,
		&rule.ValidFrom, &rule.ValidUntil,
	)
	rule.Kind = discount.Kind(kind)
	return rule, err
}
