package loans

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/money"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// RestructureParams carries the per-type inputs of a restructuring action.
type RestructureParams struct {
	NewTerm     int
	NewPayment  decimal.Decimal
	NewRate     decimal.Decimal
	WaiveAmount decimal.Decimal
	GraceDays   int
	Reason      string
}

// RestructurePlan is the computed outcome of a recalculating restructure,
// applied to the loan and its future schedule in one transaction.
type RestructurePlan struct {
	Type               RestructureType
	RemainingPrincipal decimal.Decimal
	PreservedInterest  decimal.Decimal
	PreservedPenalty   decimal.Decimal
	NewTerm            int
	NewRate            decimal.Decimal
	NewPayment         decimal.Decimal
	NewTotalInterest   decimal.Decimal
}

// RemainingPrincipal is the principal a recalculation spreads over the new
// schedule. Instalments with payment history are kept as they stand, so
// their full expected principal is excluded: a partially paid row keeps
// collecting its own unpaid remainder and must not be amortized a second
// time. amount_repaid is deliberately not used here because it also
// contains interest and penalty.
func RemainingPrincipal(loan LoanApplication, instalments []Instalment) decimal.Decimal {
	covered := decimal.Zero
	for _, inst := range instalments {
		if inst.Settled() || inst.HasProgress() {
			covered = covered.Add(inst.ExpectedPrincipal)
		}
	}
	return loan.Principal.Sub(covered)
}

// PreservedInterest sums expected interest on instalments that already
// received payment, so recalculation never erases interest history.
func PreservedInterest(instalments []Instalment) decimal.Decimal {
	sum := decimal.Zero
	for _, inst := range instalments {
		if inst.Settled() || inst.HasProgress() {
			sum = sum.Add(inst.ExpectedInterest)
		}
	}
	return sum
}

// PreservedPenalty sums expected penalties on instalments that survive a
// recalculation, so late fees already assessed on them stay collectable.
func PreservedPenalty(instalments []Instalment) decimal.Decimal {
	sum := decimal.Zero
	for _, inst := range instalments {
		if inst.Settled() || inst.HasProgress() {
			sum = sum.Add(inst.ExpectedPenalty)
		}
	}
	return sum
}

// PlanRestructure validates the requested action against the loan's current
// position and derives the new term, rate and payment.
func PlanRestructure(loan LoanApplication, instalments []Instalment, rtype RestructureType, params RestructureParams) (RestructurePlan, error) {
	remaining := RemainingPrincipal(loan, instalments)
	plan := RestructurePlan{
		Type:               rtype,
		RemainingPrincipal: remaining,
		PreservedInterest:  PreservedInterest(instalments),
		PreservedPenalty:   PreservedPenalty(instalments),
		NewTerm:            loan.TermMonths,
		NewRate:            loan.InterestRate,
		NewPayment:         loan.MonthlyRepayment,
	}

	switch rtype {
	case RestructureExtendTerm:
		if params.NewTerm <= loan.TermMonths {
			return RestructurePlan{}, shared.Validationf("new term %d must exceed current term %d", params.NewTerm, loan.TermMonths)
		}
		terms, err := CalculateLoan(remaining, params.NewTerm, loan.InterestRate, loan.InterestType)
		if err != nil {
			return RestructurePlan{}, err
		}
		plan.NewTerm = params.NewTerm
		plan.NewPayment = terms.MonthlyRepayment
		plan.NewTotalInterest = terms.TotalInterest
		return plan, nil

	case RestructureReduceInstallment:
		if !params.NewPayment.IsPositive() || params.NewPayment.GreaterThanOrEqual(loan.MonthlyRepayment) {
			return RestructurePlan{}, shared.Validationf("new payment %s must be below current payment %s", params.NewPayment, loan.MonthlyRepayment)
		}
		term, totalInterest, err := solveTermForPayment(loan, remaining, params.NewPayment)
		if err != nil {
			return RestructurePlan{}, err
		}
		plan.NewTerm = term
		plan.NewPayment = params.NewPayment
		plan.NewTotalInterest = totalInterest
		return plan, nil

	case RestructureAdjustInterest:
		if params.NewRate.IsNegative() {
			return RestructurePlan{}, shared.Validationf("interest rate cannot be negative")
		}
		terms, err := CalculateLoan(remaining, loan.TermMonths, params.NewRate, loan.InterestType)
		if err != nil {
			return RestructurePlan{}, err
		}
		plan.NewRate = params.NewRate
		plan.NewPayment = terms.MonthlyRepayment
		plan.NewTotalInterest = terms.TotalInterest
		return plan, nil

	case RestructureWaivePenalty:
		if !params.WaiveAmount.IsPositive() {
			return RestructurePlan{}, shared.Validationf("waiver amount must be positive")
		}
		return plan, nil

	case RestructureGracePeriod:
		if params.GraceDays <= 0 {
			return RestructurePlan{}, shared.Validationf("grace period must be at least one day")
		}
		return plan, nil

	default:
		return RestructurePlan{}, shared.Validationf("unknown restructure type %q", rtype)
	}
}

// solveTermForPayment inverts the amortization for a proposed payment.
//
// Reducing balance: n = −ln(1 − P·r/payment) / ln(1+r). A payment at or
// below the current period's interest accrual (P·r/payment ≥ 1) can never
// amortize and is rejected. Flat: the flat interest portion per period is
// P·rate%, the rest of the payment retires principal, so n = ⌈P / (payment −
// P·rate%)⌉. The ceiling means the final period is a short one.
func solveTermForPayment(loan LoanApplication, remaining, payment decimal.Decimal) (int, decimal.Decimal, error) {
	if loan.InterestType == InterestReducingBalance && !loan.InterestRate.IsZero() {
		r := PeriodicRate(loan.InterestRate)
		x := remaining.Mul(r).Div(payment)
		if x.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return 0, decimal.Zero, shared.Validationf("payment %s does not cover period interest on %s", payment, remaining)
		}
		rf := r.InexactFloat64()
		n := -math.Log(1-x.InexactFloat64()) / math.Log1p(rf)
		term := int(math.Ceil(n))
		if term <= 0 {
			term = 1
		}
		totalInterest := money.Two(payment.Mul(decimal.NewFromInt(int64(term))).Sub(remaining))
		if totalInterest.IsNegative() {
			totalInterest = decimal.Zero
		}
		return term, totalInterest, nil
	}

	periodInterest := money.Two(remaining.Mul(PeriodicRate(loan.InterestRate)))
	principalPerPeriod := payment.Sub(periodInterest)
	if !principalPerPeriod.IsPositive() {
		return 0, decimal.Zero, shared.Validationf("payment %s does not cover period interest %s", payment, periodInterest)
	}
	term := int(remaining.Div(principalPerPeriod).Ceil().IntPart())
	if term <= 0 {
		term = 1
	}
	totalInterest := money.Two(periodInterest.Mul(decimal.NewFromInt(int64(term))))
	return term, totalInterest, nil
}

// ApplyPlan mutates the loan with the recalculated terms. History already
// earned stays: total interest becomes preserved plus newly scheduled, and
// the outstanding balance is re-derived from the new total repayment plus
// penalties still carried by preserved instalments. The preserved and
// regenerated unpaid expectations then add up to the outstanding balance
// exactly, including when a partially paid instalment is kept.
func (p RestructurePlan) ApplyPlan(loan *LoanApplication) {
	loan.TermMonths = p.NewTerm
	loan.InterestRate = p.NewRate
	loan.MonthlyRepayment = p.NewPayment
	loan.TotalInterest = p.PreservedInterest.Add(p.NewTotalInterest)
	loan.TotalRepayment = loan.Principal.Add(loan.TotalInterest)
	loan.OutstandingBalance = loan.TotalRepayment.Add(p.PreservedPenalty).Sub(loan.AmountRepaid)
	loan.IsRestructured = true
	loan.Status = LoanStatusRestructured
}

// RegenerateSchedule rebuilds the future instalments from a plan, leaving
// instalments with payment history untouched. Returns the preserved rows
// and the freshly generated ones; due dates continue from the later of the
// last preserved due date and asOf.
func (p RestructurePlan) RegenerateSchedule(loan LoanApplication, instalments []Instalment, asOf time.Time) (preserved, regenerated []Instalment) {
	start := asOf
	for _, inst := range instalments {
		if inst.Settled() || inst.HasProgress() {
			preserved = append(preserved, inst)
			if inst.DueDate.After(start) {
				start = inst.DueDate
			}
		}
	}

	shadow := loan
	shadow.Principal = p.RemainingPrincipal
	shadow.TermMonths = p.NewTerm
	shadow.InterestRate = p.NewRate
	shadow.MonthlyRepayment = p.NewPayment
	shadow.TotalInterest = p.NewTotalInterest
	regenerated = BuildSchedule(shadow, start)
	for i := range regenerated {
		regenerated[i].Sequence = len(preserved) + i + 1
	}
	return preserved, regenerated
}
