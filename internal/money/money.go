// Package money provides decimal helpers shared by the financial engines.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount indicates a malformed monetary string.
var ErrInvalidAmount = errors.New("money: invalid amount")

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// Two rounds an amount to two decimal places, half away from zero.
// All monetary outputs are rounded exactly once, at the boundary of a
// computation, never on intermediate steps.
func Two(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Parse converts a user-supplied amount string into a decimal.
func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Exponent() < -2 {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FromFloat converts a float carried by an external payload into a
// two-decimal amount.
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// WithinCents reports whether two amounts differ by at most n cents.
func WithinCents(a, b decimal.Decimal, n int64) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(decimal.New(n, -2))
}

// Min returns the smaller of two amounts.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
