// Package catalog describes purchasable product variations owned by a business.
package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a variation does not exist or belongs to
// another business.
var ErrNotFound = errors.New("variation not found")

// Variation is a single purchasable unit of a product, e.g. "Coffee Large".
type Variation struct {
	ID            string
	BusinessID    string
	ProductName   string
	VariationName string
	ItemGroup     string
	Price         decimal.Decimal
	PictureURL    string
}

// DisplayName joins the product and variation names.
func (v Variation) DisplayName() string {
	return strings.TrimSpace(v.ProductName + " " + v.VariationName)
}

// Repository defines read operations for the catalogue. All lookups are
// scoped to a business.
type Repository interface {
	List(ctx context.Context, businessID string) ([]Variation, error)
	GetByID(ctx context.Context, businessID, id string) (*Variation, error)
	GetByIDs(ctx context.Context, businessID string, ids []string) ([]Variation, error)
}
