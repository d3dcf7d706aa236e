package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/order"
)

// RedemptionKind distinguishes discount and giftcard references.
type RedemptionKind string

const (
	RedeemDiscount RedemptionKind = "discount"
	RedeemGiftcard RedemptionKind = "giftcard"
)

// Redemption references a discount or giftcard to apply at checkout. Amount
// optionally caps a giftcard redemption; it is not valid for discounts.
type Redemption struct {
	Kind   RedemptionKind
	ID     string
	Amount decimal.NullDecimal
}

// Request is the input of a preview. Tip is absent when not Valid, which is
// distinct from an explicit zero tip.
type Request struct {
	BusinessID  string
	Lines       []CartLine
	Tip         decimal.NullDecimal
	Redemptions []Redemption
}

// CreateRequest is the input of a checkout commit.
type CreateRequest struct {
	Request
	UserID         string
	IdempotencyKey string
}

// Breakdown is the priced result of a cart. Lines keep the cart order.
type Breakdown struct {
	Lines     []order.Line
	Discounts []order.AppliedDiscount
	Giftcards []order.AppliedGiftcard
	order.Totals
}

// validate checks the request shape and returns the coalesced cart lines.
func (r *Request) validate() ([]CartLine, error) {
	if r.BusinessID == "" {
		return nil, &ValidationError{Field: "businessId", Reason: "business id required"}
	}
	if len(r.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: ErrEmptyCart.Error(), Err: ErrEmptyCart}
	}

	cart := NewCart()
	for i, l := range r.Lines {
		if err := cart.Add(l.VariationID, l.Quantity); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d]", i), Reason: err.Error(), Err: err}
		}
	}

	if r.Tip.Valid {
		if reason := checkAmount(r.Tip.Decimal, true); reason != "" {
			return nil, &ValidationError{Field: "tip", Reason: reason}
		}
	}

	type refKey struct {
		kind RedemptionKind
		id   string
	}
	seen := make(map[refKey]struct{}, len(r.Redemptions))
	for i, rd := range r.Redemptions {
		field := fmt.Sprintf("redemptions[%d]", i)
		if rd.ID == "" {
			return nil, &ValidationError{Field: field, Reason: "id required"}
		}
		switch rd.Kind {
		case RedeemDiscount:
			if rd.Amount.Valid {
				return nil, &ValidationError{Field: field, Reason: "amount applies to giftcards only"}
			}
		case RedeemGiftcard:
			if rd.Amount.Valid {
				if reason := checkAmount(rd.Amount.Decimal, false); reason != "" {
					return nil, &ValidationError{Field: field + ".amount", Reason: reason}
				}
			}
		default:
			return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("unknown kind %q", rd.Kind)}
		}

		key := refKey{kind: rd.Kind, id: rd.ID}
		if _, dup := seen[key]; dup {
			return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("%s %s referenced twice", rd.Kind, rd.ID)}
		}
		seen[key] = struct{}{}
	}

	return cart.Lines(), nil
}

// checkAmount returns a reason when d is not a valid currency amount.
func checkAmount(d decimal.Decimal, allowZero bool) string {
	switch {
	case d.IsNegative():
		return "must not be negative"
	case !allowZero && d.IsZero():
		return "must be greater than 0"
	case !d.Equal(d.Round(2)):
		return "at most two decimal places"
	}
	return ""
}
