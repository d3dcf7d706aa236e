package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRule_Apply(t *testing.T) {
	tests := []struct {
		name       string
		rule       Rule
		running    string
		wantAmount string
		wantNext   string
	}{
		{name: "percentage", rule: Rule{Kind: KindPercentage, Value: dec("10")}, running: "8.50", wantAmount: "0.85", wantNext: "7.65"},
		{name: "percentage rounds to cents", rule: Rule{Kind: KindPercentage, Value: dec("15")}, running: "7.65", wantAmount: "1.15", wantNext: "6.50"},
		{name: "full percentage", rule: Rule{Kind: KindPercentage, Value: dec("100")}, running: "3.33", wantAmount: "3.33", wantNext: "0.00"},
		{name: "fixed", rule: Rule{Kind: KindFixed, Value: dec("2")}, running: "8.50", wantAmount: "2.00", wantNext: "6.50"},
		{name: "fixed clamps at running", rule: Rule{Kind: KindFixed, Value: dec("20")}, running: "8.50", wantAmount: "8.50", wantNext: "0.00"},
		{name: "nothing left", rule: Rule{Kind: KindFixed, Value: dec("1")}, running: "0", wantAmount: "0.00", wantNext: "0.00"},
		{name: "unknown kind", rule: Rule{Kind: "bogo", Value: dec("1")}, running: "5", wantAmount: "0.00", wantNext: "5.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, next := tt.rule.Apply(dec(tt.running))
			assert.Equal(t, tt.wantAmount, amount.StringFixed(2))
			assert.Equal(t, tt.wantNext, next.StringFixed(2))
		})
	}
}

func TestRule_Check(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{name: "valid percentage", rule: Rule{Kind: KindPercentage, Value: dec("25")}},
		{name: "valid fixed in window", rule: Rule{Kind: KindFixed, Value: dec("1"), ValidFrom: &before, ValidUntil: &after}},
		{name: "percentage above 100", rule: Rule{Kind: KindPercentage, Value: dec("101")}, wantErr: ErrInvalidRule},
		{name: "negative percentage", rule: Rule{Kind: KindPercentage, Value: dec("-1")}, wantErr: ErrInvalidRule},
		{name: "negative fixed", rule: Rule{Kind: KindFixed, Value: dec("-0.01")}, wantErr: ErrInvalidRule},
		{name: "unknown kind", rule: Rule{Kind: "bogo", Value: dec("1")}, wantErr: ErrInvalidRule},
		{name: "not started", rule: Rule{Kind: KindFixed, Value: dec("1"), ValidFrom: &after}, wantErr: ErrExpired},
		{name: "ended", rule: Rule{Kind: KindFixed, Value: dec("1"), ValidUntil: &before}, wantErr: ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Check(now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
