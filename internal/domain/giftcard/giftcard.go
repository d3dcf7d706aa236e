package giftcard

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a giftcard does not exist within the business.
	ErrNotFound = errors.New("giftcard not found")
	// ErrInsufficientBalance is returned by TryRedeem when the balance no
	// longer covers the requested amount, typically after a concurrent redemption.
	ErrInsufficientBalance = errors.New("giftcard balance insufficient")
	// ErrContended is returned by TryRedeem when the store aborted the
	// redemption because of a lock conflict with another checkout.
	ErrContended = errors.New("giftcard redemption contended")
)

// Card is a stored-value card issued by a business.
type Card struct {
	ID         string
	BusinessID string
	Balance    decimal.Decimal
}

// Redemption is the outcome of a successful TryRedeem.
type Redemption struct {
	Applied    decimal.Decimal
	NewBalance decimal.Decimal
}

// Store provides balance reads and atomic check-and-decrement redemption.
type Store interface {
	Get(ctx context.Context, businessID, id string) (*Card, error)
	TryRedeem(ctx context.Context, businessID, id string, amount decimal.Decimal) (Redemption, error)
}

// Issuer creates giftcards in bulk. Cards whose id already exists within the
// business are left untouched.
type Issuer interface {
	Issue(ctx context.Context, businessID string, cards []Card) (int64, error)
}
