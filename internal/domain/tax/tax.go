package tax

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrBusinessNotFound is returned when no tax configuration exists for a business.
var ErrBusinessNotFound = errors.New("business not found")

// Provider resolves the configured tax rate of a business. A valid rate
// satisfies 0 <= rate < 1.
type Provider interface {
	GetTaxRate(ctx context.Context, businessID string) (decimal.Decimal, error)
}

var one = decimal.NewFromInt(1)

// ValidRate reports whether rate is within [0, 1).
func ValidRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThan(one)
}
