package loans

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/money"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// ErrInvalidTerm rejects non-positive loan terms before any arithmetic.
var ErrInvalidTerm = fmt.Errorf("%w: loan term must be positive", shared.ErrValidation)

// Terms is the calculator output for one loan quote.
type Terms struct {
	MonthlyRepayment decimal.Decimal
	TotalInterest    decimal.Decimal
	TotalRepayment   decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// CalculateLoan computes the periodic payment and interest totals for a
// loan. rate is the periodic rate in percent (e.g. 2 means 2% per period).
//
// Flat interest applies the rate once per period on the original principal:
// total interest = principal × rate% × term. Reducing balance uses the
// standard amortizing-loan formula payment = P·r / (1 − (1+r)^−n).
// Outputs are rounded to two decimals exactly once, here at the boundary.
func CalculateLoan(principal decimal.Decimal, termMonths int, rate decimal.Decimal, interestType InterestType) (Terms, error) {
	if termMonths <= 0 {
		return Terms{}, ErrInvalidTerm
	}
	if principal.IsNegative() || principal.IsZero() {
		return Terms{}, shared.Validationf("principal must be positive")
	}
	if rate.IsNegative() {
		return Terms{}, shared.Validationf("interest rate cannot be negative")
	}
	if !interestType.Valid() {
		return Terms{}, shared.Validationf("unknown interest type %q", interestType)
	}

	n := decimal.NewFromInt(int64(termMonths))
	switch interestType {
	case InterestFlat:
		totalInterest := money.Two(principal.Mul(rate).Div(oneHundred).Mul(n))
		totalRepayment := principal.Add(totalInterest)
		payment := money.Two(totalRepayment.Div(n))
		return Terms{
			MonthlyRepayment: payment,
			TotalInterest:    totalInterest,
			TotalRepayment:   totalRepayment,
		}, nil
	default:
		payment := amortizedPayment(principal, rate, termMonths)
		totalRepayment := payment.Mul(n)
		totalInterest := money.Two(totalRepayment.Sub(principal))
		return Terms{
			MonthlyRepayment: payment,
			TotalInterest:    totalInterest,
			TotalRepayment:   money.Two(totalRepayment),
		}, nil
	}
}

// amortizedPayment evaluates P·r·(1+r)^n / ((1+r)^n − 1). The integer
// exponent keeps the whole computation in exact decimals; only the final
// division is truncated, well past cent precision.
func amortizedPayment(principal, rate decimal.Decimal, termMonths int) decimal.Decimal {
	n := decimal.NewFromInt(int64(termMonths))
	if rate.IsZero() {
		return money.Two(principal.Div(n))
	}
	r := rate.Div(oneHundred)
	factor := decimal.NewFromInt(1).Add(r).Pow(n)
	return money.Two(principal.Mul(r).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))))
}

// PeriodicRate returns the per-period rate as a fraction (2% → 0.02).
func PeriodicRate(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(oneHundred)
}
