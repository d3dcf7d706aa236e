package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/discount"
)

var (
	// ErrNotFound is returned when an order does not exist within the business.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIdempotencyKey is returned by Save when another order of the
	// same business already holds the idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrUnbalanced is returned by Validate when the frozen totals do not add up.
	ErrUnbalanced = errors.New("order totals do not balance")
)

// Totals is the monetary breakdown of a cart. All amounts carry two decimal
// places.
type Totals struct {
	Subtotal           decimal.Decimal
	DiscountTotal      decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	TaxRate            decimal.Decimal
	TaxesTotal         decimal.Decimal
	Tip                decimal.Decimal
	GiftcardCredit     decimal.Decimal
	Total              decimal.Decimal
}

// Line is a priced cart line. UnitPrice is frozen at the moment the line was
// priced.
type Line struct {
	Position      int
	VariationID   string
	Name          string
	UnitPrice     decimal.Decimal
	Quantity      int
	ExtendedPrice decimal.Decimal
}

// AppliedDiscount records a discount as it was applied to an order.
type AppliedDiscount struct {
	DiscountID string
	Name       string
	Kind       discount.Kind
	Value      decimal.Decimal
	Amount     decimal.Decimal
}

// AppliedGiftcard records giftcard credit used as payment for an order.
type AppliedGiftcard struct {
	GiftcardID string
	Amount     decimal.Decimal
}

// Order is the immutable result of a checkout.
type Order struct {
	ID             string
	BusinessID     string
	UserID         string
	Lines          []Line
	Discounts      []AppliedDiscount
	Giftcards      []AppliedGiftcard
	Totals         Totals
	IdempotencyKey string
	CreatedAt      time.Time
}

// Validate checks that the line snapshot sums to the subtotal and that
// total == discounted subtotal + taxes + tip - giftcard credit, to the cent.
func (o *Order) Validate() error {
	sum := decimal.Zero
	for _, l := range o.Lines {
		if l.Quantity <= 0 || l.ExtendedPrice.IsNegative() {
			return errors.Wrapf(ErrUnbalanced, "line %d: quantity %d, extended price %s",
				l.Position, l.Quantity, l.ExtendedPrice)
		}
		sum = sum.Add(l.ExtendedPrice)
	}
	t := o.Totals
	if !sum.Equal(t.Subtotal) {
		return errors.Wrapf(ErrUnbalanced, "lines sum %s, subtotal %s", sum, t.Subtotal)
	}
	if !t.Subtotal.Sub(t.DiscountTotal).Equal(t.DiscountedSubtotal) {
		return errors.Wrapf(ErrUnbalanced, "subtotal %s - discounts %s != %s",
			t.Subtotal, t.DiscountTotal, t.DiscountedSubtotal)
	}
	want := t.DiscountedSubtotal.Add(t.TaxesTotal).Add(t.Tip).Sub(t.GiftcardCredit)
	if !want.Equal(t.Total) {
		return errors.Wrapf(ErrUnbalanced, "total %s, expected %s", t.Total, want)
	}
	return nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	Save(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, businessID, id string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, businessID, key string) (*Order, error)
}
