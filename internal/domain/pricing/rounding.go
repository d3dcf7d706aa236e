package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RoundingMode selects how the tax amount is rounded to cents.
type RoundingMode string

const (
	// RoundHalfUp rounds halves away from zero: 0.765 -> 0.77.
	RoundHalfUp RoundingMode = "half_up"
	// RoundHalfEven rounds halves to the even cent: 0.765 -> 0.76.
	RoundHalfEven RoundingMode = "half_even"
)

// ParseRoundingMode parses a configured rounding mode. Empty selects
// RoundHalfUp so the published receipt examples (0.765 tax -> 0.77) hold;
// RoundHalfEven is opt-in.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch RoundingMode(s) {
	case "", RoundHalfUp:
		return RoundHalfUp, nil
	case RoundHalfEven:
		return RoundHalfEven, nil
	default:
		return "", errors.Errorf("unknown rounding mode %q", s)
	}
}

// Round rounds d to two decimal places.
func (m RoundingMode) Round(d decimal.Decimal) decimal.Decimal {
	if m == RoundHalfEven {
		return d.RoundBank(2)
	}
	return d.Round(2)
}
