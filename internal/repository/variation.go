package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/pos-checkout/internal/domain/catalog"
)

const (
	variationColumns = `id, business_id, product_name, variation_name, item_group, price, picture_url`

	listVariationsSQL = `SELECT ` + variationColumns + `
		FROM variations WHERE business_id = $1 AND NOT archived
		ORDER BY product_name, variation_name, id`

	getVariationByIDSQL = `SELECT ` + variationColumns + `
		FROM variations WHERE business_id = $1 AND id = $2 AND NOT archived`

	getVariationsByIDsSQL = `SELECT ` + variationColumns + `
		FROM variations WHERE business_id = $1 AND id = ANY($2) AND NOT archived`
)

var _ catalog.Repository = (*VariationRepository)(nil)

// VariationRepository implements catalog.Repository backed by PostgreSQL.
type VariationRepository struct {
	db Querier
}

// NewVariationRepository returns a VariationRepository that uses db.
func NewVariationRepository(db Querier) *VariationRepository {
	return &VariationRepository{db: db}
}

// List returns the active variations of a business ordered by name.
func (r *VariationRepository) List(ctx context.Context, businessID string) ([]catalog.Variation, error) {
	rows, err := r.db.Query(ctx, listVariationsSQL, businessID)
	if err != nil {
		return nil, fmt.Errorf("listing variations: %w", err)
	}
	return pgx.CollectRows(rows, scanVariation)
}

// GetByID returns a single variation of the business.
func (r *VariationRepository) GetByID(ctx context.Context, businessID, id string) (*catalog.Variation, error) {
	rows, err := r.db.Query(ctx, getVariationByIDSQL, businessID, id)
	if err != nil {
		return nil, fmt.Errorf("getting variation %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting variation %q: %w", id, err)
	}
	return &v, nil
}

// GetByIDs returns the variations of the business matching any of ids.
// Unknown ids are omitted from the result.
func (r *VariationRepository) GetByIDs(ctx context.Context, businessID string, ids []string) ([]catalog.Variation, error) {
	rows, err := r.db.Query(ctx, getVariationsByIDsSQL, businessID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variations by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariation)
}

func scanVariation(row pgx.CollectableRow) (catalog.Variation, error) {
	var v catalog.Variation
	err := row.Scan(
		&v.ID, &v.BusinessID, &v.ProductName, &v.VariationName,
		&v.ItemGroup, &v.Price, &v.PictureURL,
	)
	return v, err
}
