package loans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/money"
)

// BuildSchedule generates the per-instalment expected breakdown for a loan
// from its computed terms. The final instalment absorbs rounding drift so
// the schedule sums exactly to principal plus total interest.
//
// Loans in interest-deducted-upfront mode already collected their interest
// at disbursement, so their instalments carry principal only.
func BuildSchedule(loan LoanApplication, startDate time.Time) []Instalment {
	if loan.TermMonths <= 0 {
		return nil
	}
	if loan.InterestDeductedUpfront {
		return buildEvenSchedule(loan, startDate, loan.Principal, decimal.Zero)
	}
	switch loan.InterestType {
	case InterestReducingBalance:
		return buildReducingSchedule(loan, startDate)
	default:
		return buildEvenSchedule(loan, startDate, loan.Principal, loan.TotalInterest)
	}
}

// buildReducingSchedule walks the declining balance: each period's interest
// is remaining × r, the rest of the payment is principal, and the last row
// clears whatever remains.
func buildReducingSchedule(loan LoanApplication, startDate time.Time) []Instalment {
	r := PeriodicRate(loan.InterestRate)
	remaining := loan.Principal
	scheduledInterest := decimal.Zero
	out := make([]Instalment, 0, loan.TermMonths)
	for seq := 1; seq <= loan.TermMonths; seq++ {
		interest := money.Two(remaining.Mul(r))
		principal := loan.MonthlyRepayment.Sub(interest)
		if seq == loan.TermMonths || principal.GreaterThan(remaining) {
			principal = remaining
		}
		if seq == loan.TermMonths {
			// Rounding drift lands on the last row so the schedule sums
			// exactly to principal plus total interest.
			if adjusted := loan.TotalInterest.Sub(scheduledInterest); !adjusted.IsNegative() {
				interest = adjusted
			}
		}
		scheduledInterest = scheduledInterest.Add(interest)
		remaining = remaining.Sub(principal)
		out = append(out, Instalment{
			LoanID:            loan.ID,
			Sequence:          seq,
			DueDate:           loan.Frequency.Step(startDate, seq),
			ExpectedPrincipal: principal,
			ExpectedInterest:  interest,
			Status:            InstalmentPending,
		})
	}
	return out
}

// buildEvenSchedule splits principal and interest evenly across the term,
// correcting the final instalment for rounding.
func buildEvenSchedule(loan LoanApplication, startDate time.Time, principal, totalInterest decimal.Decimal) []Instalment {
	n := decimal.NewFromInt(int64(loan.TermMonths))
	perPrincipal := money.Two(principal.Div(n))
	perInterest := money.Two(totalInterest.Div(n))
	out := make([]Instalment, 0, loan.TermMonths)
	principalLeft := principal
	interestLeft := totalInterest
	for seq := 1; seq <= loan.TermMonths; seq++ {
		p, i := perPrincipal, perInterest
		if seq == loan.TermMonths {
			p, i = principalLeft, interestLeft
		}
		principalLeft = principalLeft.Sub(p)
		interestLeft = interestLeft.Sub(i)
		out = append(out, Instalment{
			LoanID:            loan.ID,
			Sequence:          seq,
			DueDate:           loan.Frequency.Step(startDate, seq),
			ExpectedPrincipal: p,
			ExpectedInterest:  i,
			Status:            InstalmentPending,
		})
	}
	return out
}
