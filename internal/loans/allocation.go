package loans

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/money"
)

// Allocation is the split of one cash payment. The conservation invariant
// holds exactly: PrincipalApplied + InterestApplied + PenaltyApplied +
// Overpayment == the cash received.
type Allocation struct {
	PrincipalApplied decimal.Decimal
	InterestApplied  decimal.Decimal
	PenaltyApplied   decimal.Decimal
	Overpayment      decimal.Decimal
}

// Total returns the amount applied to the loan, excluding overpayment.
func (a Allocation) Total() decimal.Decimal {
	return a.PrincipalApplied.Add(a.InterestApplied).Add(a.PenaltyApplied)
}

// AllocatePayment walks the loan's outstanding instalments oldest due date
// first, exhausting penalty, then interest, then principal on each before
// moving to the next. Cash left after the whole schedule is covered becomes
// overpayment, which the caller credits to the member's savings rather than
// the loan.
//
// Touched instalments have their paid components and status updated in
// place; the loan aggregate itself is updated by the caller.
func AllocatePayment(loan *LoanApplication, instalments []*Instalment, cash decimal.Decimal) Allocation {
	if len(instalments) == 0 {
		return allocateWithoutSchedule(loan, cash)
	}

	sort.Slice(instalments, func(i, j int) bool {
		return instalments[i].DueDate.Before(instalments[j].DueDate)
	})

	var alloc Allocation
	left := cash
	for _, inst := range instalments {
		if !left.IsPositive() {
			break
		}
		penalty := money.Min(left, inst.OutstandingPenalty())
		inst.PaidPenalty = inst.PaidPenalty.Add(penalty)
		alloc.PenaltyApplied = alloc.PenaltyApplied.Add(penalty)
		left = left.Sub(penalty)

		interest := money.Min(left, inst.OutstandingInterest())
		inst.PaidInterest = inst.PaidInterest.Add(interest)
		alloc.InterestApplied = alloc.InterestApplied.Add(interest)
		left = left.Sub(interest)

		principal := money.Min(left, inst.OutstandingPrincipal())
		inst.PaidPrincipal = inst.PaidPrincipal.Add(principal)
		alloc.PrincipalApplied = alloc.PrincipalApplied.Add(principal)
		left = left.Sub(principal)

		inst.RecomputeStatus()
	}
	alloc.Overpayment = left
	return alloc
}

// allocateWithoutSchedule handles legacy loans that carry no per-instalment
// schedule. One period's interest is computed from the loan's interest type,
// the remainder goes to principal; there is no penalty concept and
// overpayment is zero by construction in this mode.
func allocateWithoutSchedule(loan *LoanApplication, cash decimal.Decimal) Allocation {
	if loan.InterestDeductedUpfront {
		return Allocation{
			PrincipalApplied: cash,
			InterestApplied:  decimal.Zero,
			PenaltyApplied:   decimal.Zero,
			Overpayment:      decimal.Zero,
		}
	}
	var periodInterest decimal.Decimal
	switch loan.InterestType {
	case InterestReducingBalance:
		periodInterest = money.Two(loan.OutstandingBalance.Mul(PeriodicRate(loan.InterestRate)))
	default:
		periodInterest = money.Two(loan.Principal.Mul(PeriodicRate(loan.InterestRate)))
	}
	interest := money.Min(cash, periodInterest)
	return Allocation{
		PrincipalApplied: cash.Sub(interest),
		InterestApplied:  interest,
		PenaltyApplied:   decimal.Zero,
		Overpayment:      decimal.Zero,
	}
}

// ApplyAllocation folds an allocation into the loan aggregate: repaid and
// outstanding balances, payment dates and, on payoff, the closed state.
// Returns true when the loan transitioned to paid.
func ApplyAllocation(loan *LoanApplication, instalments []*Instalment, alloc Allocation, paidAt time.Time) bool {
	applied := alloc.Total()
	loan.AmountRepaid = loan.AmountRepaid.Add(applied)
	loan.OutstandingBalance = loan.OutstandingBalance.Sub(applied)
	loan.LastPaymentDate = &paidAt
	loan.NextPaymentDate = nextUnresolvedDueDate(instalments)

	if loan.OutstandingBalance.LessThanOrEqual(decimal.Zero) {
		loan.Status = LoanStatusPaid
		closed := paidAt
		loan.ClosedAt = &closed
		loan.NextPaymentDate = nil
		return true
	}
	return false
}

func nextUnresolvedDueDate(instalments []*Instalment) *time.Time {
	var next *time.Time
	for _, inst := range instalments {
		if inst.Settled() {
			continue
		}
		due := inst.DueDate
		if next == nil || due.Before(*next) {
			next = &due
		}
	}
	return next
}
