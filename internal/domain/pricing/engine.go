package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/catalog"
	"github.com/xenking/pos-checkout/internal/domain/discount"
	"github.com/xenking/pos-checkout/internal/domain/giftcard"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/tax"
)

// Stores groups the collaborators the engine reads from and writes to.
type Stores struct {
	Catalog   catalog.Repository
	Discounts discount.Repository
	Giftcards giftcard.Store
	Taxes     tax.Provider
	Orders    order.Repository
}

// price resolves every reference of req through st and computes the
// breakdown. It performs no writes.
func (s *Service) price(ctx context.Context, st Stores, req Request) (*Breakdown, error) {
	lines, err := req.validate()
	if err != nil {
		return nil, err
	}

	priced, subtotal, err := s.priceLines(ctx, st, req.BusinessID, lines)
	if err != nil {
		return nil, err
	}

	// Discounts apply in submitted order against the running subtotal.
	running := subtotal
	var applied []order.AppliedDiscount
	for i, rd := range req.Redemptions {
		if rd.Kind != RedeemDiscount {
			continue
		}
		rule, err := st.Discounts.GetByID(ctx, req.BusinessID, rd.ID)
		if err != nil {
			if errors.Is(err, discount.ErrNotFound) {
				return nil, &NotFoundError{Entity: "discount", ID: rd.ID, Err: err}
			}
			return nil, errors.Wrapf(err, "get discount %s", rd.ID)
		}
		if err := rule.Check(s.now()); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("redemptions[%d]", i), Reason: err.Error(), Err: err}
		}

		var amount decimal.Decimal
		amount, running = rule.Apply(running)
		applied = append(applied, order.AppliedDiscount{
			DiscountID: rule.ID,
			Name:       rule.Name,
			Kind:       rule.Kind,
			Value:      rule.Value,
			Amount:     amount,
		})
	}
	discounted := running

	// Giftcards are a payment method: they reduce what is owed, not what is taxed.
	credit := decimal.Zero
	var cards []order.AppliedGiftcard
	for _, rd := range req.Redemptions {
		if rd.Kind != RedeemGiftcard {
			continue
		}
		card, err := st.Giftcards.Get(ctx, req.BusinessID, rd.ID)
		if err != nil {
			if errors.Is(err, giftcard.ErrNotFound) {
				return nil, &NotFoundError{Entity: "giftcard", ID: rd.ID, Err: err}
			}
			return nil, errors.Wrapf(err, "get giftcard %s", rd.ID)
		}

		amount := decimal.Min(card.Balance, discounted.Sub(credit))
		if rd.Amount.Valid {
			amount = decimal.Min(amount, rd.Amount.Decimal)
		}
		if !amount.IsPositive() {
			continue
		}
		credit = credit.Add(amount)
		cards = append(cards, order.AppliedGiftcard{GiftcardID: card.ID, Amount: amount})
	}

	rate, err := st.Taxes.GetTaxRate(ctx, req.BusinessID)
	if err != nil {
		if errors.Is(err, tax.ErrBusinessNotFound) {
			return nil, &NotFoundError{Entity: "business", ID: req.BusinessID, Err: err}
		}
		return nil, errors.Wrap(err, "get tax rate")
	}
	if !tax.ValidRate(rate) {
		return nil, &ValidationError{Field: "taxRate", Reason: fmt.Sprintf("configured rate %s outside [0, 1)", rate)}
	}
	taxes := s.rounding.Round(discounted.Mul(rate))

	tip := decimal.Zero
	if req.Tip.Valid {
		tip = req.Tip.Decimal
	}

	total := discounted.Add(taxes).Add(tip).Sub(credit)
	if total.IsNegative() {
		return nil, &ValidationError{Field: "total", Reason: fmt.Sprintf("computed total %s is negative", total)}
	}

	return &Breakdown{
		Lines:     priced,
		Discounts: applied,
		Giftcards: cards,
		Totals: order.Totals{
			Subtotal:           subtotal,
			DiscountTotal:      subtotal.Sub(discounted),
			DiscountedSubtotal: discounted,
			TaxRate:            rate,
			TaxesTotal:         taxes,
			Tip:                tip,
			GiftcardCredit:     credit,
			Total:              total,
		},
	}, nil
}

// priceLines fetches the variations of lines in one batch and computes the
// extended price of each line and their sum.
func (s *Service) priceLines(
	ctx context.Context,
	st Stores,
	businessID string,
	lines []CartLine,
) ([]order.Line, decimal.Decimal, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.VariationID
	}

	fetched, err := st.Catalog.GetByIDs(ctx, businessID, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get variations")
	}

	byID := make(map[string]catalog.Variation, len(fetched))
	for _, v := range fetched {
		// Repositories filter by business already; this guards the invariant
		// against an implementation that does not.
		if v.BusinessID == businessID {
			byID[v.ID] = v
		}
	}

	priced := make([]order.Line, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		v, ok := byID[l.VariationID]
		if !ok {
			return nil, decimal.Zero, &NotFoundError{Entity: "variation", ID: l.VariationID, Err: catalog.ErrNotFound}
		}
		extended := v.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		priced[i] = order.Line{
			Position:      i + 1,
			VariationID:   v.ID,
			Name:          v.DisplayName(),
			UnitPrice:     v.Price,
			Quantity:      l.Quantity,
			ExtendedPrice: extended,
		}
		subtotal = subtotal.Add(extended)
	}

	return priced, subtotal, nil
}
