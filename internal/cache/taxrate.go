// Package cache provides read-through caches in front of domain providers.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/tax"
)

const taxRatePrefix = "pos:tax_rate:"

var _ tax.Provider = (*TaxRates)(nil)

// TaxRates caches business tax rates in Redis. Redis failures are logged and
// fall through to the wrapped provider.
type TaxRates struct {
	client *redis.Client
	next   tax.Provider
	ttl    time.Duration
}

// NewTaxRates returns a TaxRates reading through to next. A nil client or a
// non-positive ttl disables caching.
func NewTaxRates(client *redis.Client, next tax.Provider, ttl time.Duration) *TaxRates {
	return &TaxRates{client: client, next: next, ttl: ttl}
}

func (c *TaxRates) enabled() bool {
	return c.client != nil && c.ttl > 0
}

// GetTaxRate returns the cached rate of the business or loads it from the
// wrapped provider.
func (c *TaxRates) GetTaxRate(ctx context.Context, businessID string) (decimal.Decimal, error) {
	if !c.enabled() {
		return c.next.GetTaxRate(ctx, businessID)
	}

	lg := zctx.From(ctx)
	key := taxRatePrefix + businessID

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		rate, perr := decimal.NewFromString(raw)
		if perr == nil {
			return rate, nil
		}
		lg.Warn("Corrupt cached tax rate", zap.String("business_id", businessID), zap.Error(perr))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Read cached tax rate", zap.String("business_id", businessID), zap.Error(err))
	}

	rate, err := c.next.GetTaxRate(ctx, businessID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.client.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
		lg.Warn("Store cached tax rate", zap.String("business_id", businessID), zap.Error(err))
	}
	return rate, nil
}
