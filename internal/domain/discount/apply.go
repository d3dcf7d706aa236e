package discount

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Apply computes the amount this rule takes off the running subtotal and
// returns it together with the new running subtotal. Amounts are rounded to
// cents and never exceed the running subtotal, so the result never drops
// below zero.
func (r *Rule) Apply(running decimal.Decimal) (amount, next decimal.Decimal) {
	if !running.IsPositive() {
		return decimal.Zero, decimal.Zero
	}

	switch r.Kind {
	case KindPercentage:
		amount = running.Mul(r.Value).Div(hundred).Round(2)
	case KindFixed:
		amount = r.Value.Round(2)
	default:
		amount = decimal.Zero
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(running) {
		amount = running
	}
	return amount, running.Sub(amount)
}
