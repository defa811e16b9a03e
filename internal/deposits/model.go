// Package deposits implements member fixed deposits: placement, simple
// interest accrual and the maturity processor with payout or auto-rollover.
package deposits

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/money"
)

// DepositStatus is the fixed deposit lifecycle. Active deposits accrue until
// their maturity date; matured deposits are terminal and keep the actual
// amounts that were paid out or rolled over.
type DepositStatus string

const (
	DepositActive  DepositStatus = "ACTIVE"
	DepositMatured DepositStatus = "MATURED"
)

// FixedDeposit is one member's fixed deposit. A rollover chain is walked
// through ParentDepositID back to the original placement.
type FixedDeposit struct {
	ID               int64
	MemberID         int64
	Principal        decimal.Decimal
	Rate             decimal.Decimal
	TermMonths       int
	StartDate        time.Time
	MaturityDate     time.Time
	ExpectedInterest decimal.Decimal
	MaturityAmount   decimal.Decimal
	ActualInterest   decimal.Decimal
	ActualPayout     decimal.Decimal
	AutoRollover     bool
	RolloverCount    int
	ParentDepositID  *int64
	Status           DepositStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Matured reports whether the deposit is due for processing as of the given
// date.
func (d FixedDeposit) Matured(asOf time.Time) bool {
	return d.Status == DepositActive && !d.MaturityDate.After(asOf)
}

var (
	twelve     = decimal.NewFromInt(12)
	oneHundred = decimal.NewFromInt(100)
)

// SimpleInterest computes principal × rate × (termMonths/12) / 100, the
// annual simple-interest accrual prorated by term.
func SimpleInterest(principal, annualRate decimal.Decimal, termMonths int) decimal.Decimal {
	years := decimal.NewFromInt(int64(termMonths)).Div(twelve)
	return money.Two(principal.Mul(annualRate).Mul(years).Div(oneHundred))
}

// NewDeposit builds an active deposit starting at the given date, with
// expected interest and maturity amount derived from the terms.
func NewDeposit(memberID int64, principal, annualRate decimal.Decimal, termMonths int, start time.Time, autoRollover bool) FixedDeposit {
	interest := SimpleInterest(principal, annualRate, termMonths)
	return FixedDeposit{
		MemberID:         memberID,
		Principal:        principal,
		Rate:             annualRate,
		TermMonths:       termMonths,
		StartDate:        start,
		MaturityDate:     start.AddDate(0, termMonths, 0),
		ExpectedInterest: interest,
		MaturityAmount:   principal.Add(interest),
		AutoRollover:     autoRollover,
		Status:           DepositActive,
	}
}

// Rollover derives the successor deposit of a matured one: same principal,
// fresh term starting today, rollover count incremented and the chain link
// recorded.
func (d FixedDeposit) Rollover(today time.Time) FixedDeposit {
	next := NewDeposit(d.MemberID, d.Principal, d.Rate, d.TermMonths, today, d.AutoRollover)
	next.RolloverCount = d.RolloverCount + 1
	parent := d.ID
	next.ParentDepositID = &parent
	return next
}
