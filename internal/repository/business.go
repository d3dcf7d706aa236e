package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/tax"
)

const getTaxRateSQL = `SELECT tax_rate FROM businesses WHERE id = $1`

var _ tax.Provider = (*BusinessRepository)(nil)

// BusinessRepository reads business tax configuration from PostgreSQL.
type BusinessRepository struct {
	db Querier
}

// NewBusinessRepository returns a BusinessRepository that uses db.
func NewBusinessRepository(db Querier) *BusinessRepository {
	return &BusinessRepository{db: db}
}

// GetTaxRate returns the configured tax rate of the business.
func (r *BusinessRepository) GetTaxRate(ctx context.Context, businessID string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	if err := r.db.QueryRow(ctx, getTaxRateSQL, businessID).Scan(&rate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, tax.ErrBusinessNotFound
		}
		return decimal.Zero, fmt.Errorf("getting tax rate of %q: %w", businessID, err)
	}
	return rate, nil
}
