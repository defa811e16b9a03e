package loans

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

func flatTestLoan(t *testing.T) LoanApplication {
	t.Helper()
	terms, err := CalculateLoan(dec("12000"), 12, dec("1"), InterestFlat)
	require.NoError(t, err)
	return LoanApplication{
		ID:                 7,
		Principal:          dec("12000"),
		TermMonths:         12,
		InterestRate:       dec("1"),
		InterestType:       InterestFlat,
		Frequency:          FrequencyMonthly,
		MonthlyRepayment:   terms.MonthlyRepayment,
		TotalInterest:      terms.TotalInterest,
		TotalRepayment:     terms.TotalRepayment,
		OutstandingBalance: terms.TotalRepayment,
		Status:             LoanStatusDisbursed,
	}
}

func TestPlanRestructureExtendTerm(t *testing.T) {
	loan := flatTestLoan(t)
	plan, err := PlanRestructure(loan, nil, RestructureExtendTerm, RestructureParams{NewTerm: 24})
	require.NoError(t, err)
	require.Equal(t, 24, plan.NewTerm)
	// 12000 at 1% flat over 24 periods: interest 2880, payment 620.
	require.True(t, plan.NewTotalInterest.Equal(dec("2880")))
	require.True(t, plan.NewPayment.Equal(dec("620")))
	require.True(t, plan.NewPayment.LessThan(loan.MonthlyRepayment))
}

func TestPlanRestructureExtendTermMustGrow(t *testing.T) {
	loan := flatTestLoan(t)
	_, err := PlanRestructure(loan, nil, RestructureExtendTerm, RestructureParams{NewTerm: 12})
	require.ErrorIs(t, err, shared.ErrValidation)
}

// A proposed payment at or below one period's interest accrual can never
// amortize the balance; the plan must refuse it instead of deriving a
// negative or runaway term.
func TestPlanRestructureReduceInstallmentBelowInterest(t *testing.T) {
	terms, err := CalculateLoan(dec("100000"), 12, dec("2"), InterestReducingBalance)
	require.NoError(t, err)
	loan := LoanApplication{
		Principal:        dec("100000"),
		TermMonths:       12,
		InterestRate:     dec("2"),
		InterestType:     InterestReducingBalance,
		MonthlyRepayment: terms.MonthlyRepayment,
		Status:           LoanStatusDisbursed,
	}
	// Period interest on the full balance is 2000; 1500 cannot amortize.
	_, err = PlanRestructure(loan, nil, RestructureReduceInstallment, RestructureParams{NewPayment: dec("1500")})
	require.ErrorIs(t, err, shared.ErrValidation)

	flat := flatTestLoan(t)
	// Flat period interest is 120; 100 cannot amortize.
	_, err = PlanRestructure(flat, nil, RestructureReduceInstallment, RestructureParams{NewPayment: dec("100")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPlanRestructureReduceInstallmentFlat(t *testing.T) {
	loan := flatTestLoan(t)
	plan, err := PlanRestructure(loan, nil, RestructureReduceInstallment, RestructureParams{NewPayment: dec("620")})
	require.NoError(t, err)
	// 620 per period minus 120 flat interest retires 500 principal per
	// period: 12000/500 = 24 periods.
	require.Equal(t, 24, plan.NewTerm)
	require.True(t, plan.NewPayment.Equal(dec("620")))
	require.True(t, plan.NewTotalInterest.Equal(dec("2880")))
}

func TestPlanRestructureReduceInstallmentMustShrink(t *testing.T) {
	loan := flatTestLoan(t)
	_, err := PlanRestructure(loan, nil, RestructureReduceInstallment, RestructureParams{NewPayment: loan.MonthlyRepayment})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPlanRestructureAdjustInterest(t *testing.T) {
	loan := flatTestLoan(t)
	plan, err := PlanRestructure(loan, nil, RestructureAdjustInterest, RestructureParams{NewRate: dec("0")})
	require.NoError(t, err)
	require.True(t, plan.NewRate.IsZero())
	require.True(t, plan.NewTotalInterest.IsZero())
	require.True(t, plan.NewPayment.Equal(dec("1000")))

	_, err = PlanRestructure(loan, nil, RestructureAdjustInterest, RestructureParams{NewRate: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPlanRestructureWaiveAndGraceValidation(t *testing.T) {
	loan := flatTestLoan(t)
	_, err := PlanRestructure(loan, nil, RestructureWaivePenalty, RestructureParams{WaiveAmount: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = PlanRestructure(loan, nil, RestructureGracePeriod, RestructureParams{GraceDays: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = PlanRestructure(loan, nil, RestructureType("BALLOON"), RestructureParams{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

// Restructuring mid-life must preserve paid history: settled instalments
// stay, their interest is kept in the loan totals, and only the future
// schedule is regenerated from the remaining principal.
func TestRestructurePreservesPaidHistory(t *testing.T) {
	loan := flatTestLoan(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	schedule := BuildSchedule(loan, start)
	require.Len(t, schedule, 12)

	// Settle the first three instalments.
	for i := 0; i < 3; i++ {
		schedule[i].PaidPrincipal = schedule[i].ExpectedPrincipal
		schedule[i].PaidInterest = schedule[i].ExpectedInterest
		schedule[i].Status = InstalmentPaid
	}
	loan.AmountRepaid = dec("3360")
	loan.OutstandingBalance = loan.TotalRepayment.Sub(loan.AmountRepaid)

	require.True(t, RemainingPrincipal(loan, schedule).Equal(dec("9000")))
	require.True(t, PreservedInterest(schedule).Equal(dec("360")))

	plan, err := PlanRestructure(loan, schedule, RestructureExtendTerm, RestructureParams{NewTerm: 18})
	require.NoError(t, err)
	// 9000 at 1% flat over 18 periods: interest 1620, payment 590.
	require.True(t, plan.NewTotalInterest.Equal(dec("1620")))
	require.True(t, plan.NewPayment.Equal(dec("590")))

	plan.ApplyPlan(&loan)
	require.Equal(t, LoanStatusRestructured, loan.Status)
	require.True(t, loan.IsRestructured)
	require.True(t, loan.TotalInterest.Equal(dec("1980")), "total interest %s", loan.TotalInterest)
	require.True(t, loan.TotalRepayment.Equal(dec("13980")))
	require.True(t, loan.OutstandingBalance.Equal(dec("10620")), "outstanding %s", loan.OutstandingBalance)

	asOf := start.AddDate(0, 3, 10)
	preserved, regenerated := plan.RegenerateSchedule(loan, schedule, asOf)
	require.Len(t, preserved, 3)
	require.Len(t, regenerated, 18)

	futureTotal := decimal.Zero
	for i, inst := range regenerated {
		require.Equal(t, 4+i, inst.Sequence)
		futureTotal = futureTotal.Add(inst.ExpectedPrincipal).Add(inst.ExpectedInterest)
	}
	// The regenerated schedule covers exactly the restructured outstanding.
	require.True(t, futureTotal.Equal(loan.OutstandingBalance), "future schedule %s", futureTotal)
	// Due dates continue after the last preserved instalment.
	require.True(t, regenerated[0].DueDate.After(preserved[2].DueDate))
}

// A partially paid instalment keeps collecting its own unpaid remainder, so
// recalculation must not fold that remainder into the regenerated schedule
// as well. Unpaid expectations across preserved and regenerated rows have to
// equal the loan's outstanding balance exactly, or paying the schedule to
// completion would close the loan with rows still open.
func TestRestructureWithPartialInstalmentKeepsBalancesAligned(t *testing.T) {
	loan := flatTestLoan(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	schedule := BuildSchedule(loan, start)

	// First instalment settled, second paid halfway: interest 120 cleared,
	// 440 of the 1000 principal retired.
	schedule[0].PaidPrincipal = schedule[0].ExpectedPrincipal
	schedule[0].PaidInterest = schedule[0].ExpectedInterest
	schedule[0].Status = InstalmentPaid
	schedule[1].PaidInterest = schedule[1].ExpectedInterest
	schedule[1].PaidPrincipal = dec("440")
	schedule[1].Status = InstalmentPartial
	loan.AmountRepaid = dec("1680")
	loan.OutstandingBalance = loan.TotalRepayment.Sub(loan.AmountRepaid)

	// Both touched rows stay, so their full expected principal is excluded
	// from the amount to re-amortize: 12000 − 2×1000.
	require.True(t, RemainingPrincipal(loan, schedule).Equal(dec("10000")))

	plan, err := PlanRestructure(loan, schedule, RestructureExtendTerm, RestructureParams{NewTerm: 18})
	require.NoError(t, err)
	// 10000 at 1% flat over 18 periods: interest 1800, payment 655.56.
	require.True(t, plan.NewTotalInterest.Equal(dec("1800")))
	require.True(t, plan.NewPayment.Equal(dec("655.56")))

	plan.ApplyPlan(&loan)
	require.True(t, loan.TotalInterest.Equal(dec("2040")))
	require.True(t, loan.OutstandingBalance.Equal(dec("12360")), "outstanding %s", loan.OutstandingBalance)

	preserved, regenerated := plan.RegenerateSchedule(loan, schedule, start.AddDate(0, 2, 10))
	require.Len(t, preserved, 2)
	require.Len(t, regenerated, 18)

	due := decimal.Zero
	for _, inst := range preserved {
		due = due.Add(inst.Outstanding())
	}
	for _, inst := range regenerated {
		due = due.Add(inst.Outstanding())
	}
	require.True(t, due.Equal(loan.OutstandingBalance),
		"schedule expects %s, outstanding %s", due, loan.OutstandingBalance)
}

func TestRestructureStickyFlag(t *testing.T) {
	loan := flatTestLoan(t)
	loan.IsRestructured = true
	plan, err := PlanRestructure(loan, nil, RestructureExtendTerm, RestructureParams{NewTerm: 18})
	require.NoError(t, err)
	plan.ApplyPlan(&loan)
	require.True(t, loan.IsRestructured)
}
