package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes a percentage of the running subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed subtracts a flat amount, capped at the running subtotal.
	KindFixed Kind = "fixed"
)

var (
	// ErrNotFound is returned when a discount does not exist within the business.
	ErrNotFound = errors.New("discount not found")
	// ErrExpired is returned when a discount is outside its valid time window.
	ErrExpired = errors.New("discount expired")
	// ErrInvalidRule is returned for rules with an unknown kind or out-of-range value.
	ErrInvalidRule = errors.New("invalid discount rule")
)

// Rule defines a discount configured by a business.
type Rule struct {
	ID         string
	BusinessID string
	Name       string
	Kind       Kind
	Value      decimal.Decimal
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// Repository provides business-scoped lookup of discount rules.
type Repository interface {
	GetByID(ctx context.Context, businessID, id string) (*Rule, error)
}

// Check verifies that the rule is well-formed and active at now.
func (r *Rule) Check(now time.Time) error {
	switch r.Kind {
	case KindPercentage:
		if r.Value.IsNegative() || r.Value.GreaterThan(hundred) {
			return errors.Wrapf(ErrInvalidRule, "percentage %s out of range", r.Value)
		}
	case KindFixed:
		if r.Value.IsNegative() {
			return errors.Wrapf(ErrInvalidRule, "fixed amount %s is negative", r.Value)
		}
	default:
		return errors.Wrapf(ErrInvalidRule, "unsupported kind %q", r.Kind)
	}

	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrExpired
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return ErrExpired
	}
	return nil
}
