package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestType enumerates supported interest schedules.
type InterestType string

const (
	// InterestFlat applies the rate once per period on the original
	// principal, spread evenly across the term.
	InterestFlat InterestType = "FLAT"
	// InterestReducingBalance accrues interest each period on the
	// remaining principal.
	InterestReducingBalance InterestType = "REDUCING_BALANCE"
)

// Valid reports whether the interest type is known.
func (t InterestType) Valid() bool {
	return t == InterestFlat || t == InterestReducingBalance
}

// Frequency enumerates repayment cadences.
type Frequency string

const (
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyDaily   Frequency = "DAILY"
)

// Step advances a date by n repayment periods.
func (f Frequency) Step(t time.Time, n int) time.Time {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7*n)
	case FrequencyDaily:
		return t.AddDate(0, 0, n)
	default:
		return t.AddDate(0, n, 0)
	}
}

// LoanStatus is the loan lifecycle state machine:
// pending → approved → disbursed → {paid | defaulted | restructured};
// pending → rejected is terminal. Restructured loans keep accruing and
// repaying; defaults are tracked in a separate record and resolve back into
// the normal flow.
type LoanStatus string

const (
	LoanStatusPending      LoanStatus = "PENDING"
	LoanStatusApproved     LoanStatus = "APPROVED"
	LoanStatusRejected     LoanStatus = "REJECTED"
	LoanStatusDisbursed    LoanStatus = "DISBURSED"
	LoanStatusPaid         LoanStatus = "PAID"
	LoanStatusDefaulted    LoanStatus = "DEFAULTED"
	LoanStatusRestructured LoanStatus = "RESTRUCTURED"
)

// AcceptsRepayment reports whether the loan may receive payments or be
// restructured. Only live disbursed loans qualify; defaulted loans stay in
// the repayment flow so members can catch up.
func (s LoanStatus) AcceptsRepayment() bool {
	switch s {
	case LoanStatusDisbursed, LoanStatusRestructured, LoanStatusDefaulted:
		return true
	}
	return false
}

// LoanApplication is the live loan aggregate. Balance fields are mutated
// only by the allocation and restructure engines.
type LoanApplication struct {
	ID                      int64
	MemberID                int64
	Principal               decimal.Decimal
	TermMonths              int
	InterestRate            decimal.Decimal
	InterestType            InterestType
	Frequency               Frequency
	MonthlyRepayment        decimal.Decimal
	TotalInterest           decimal.Decimal
	TotalRepayment          decimal.Decimal
	AmountRepaid            decimal.Decimal
	OutstandingBalance      decimal.Decimal
	Status                  LoanStatus
	InterestDeductedUpfront bool
	IsRestructured          bool
	NextPaymentDate         *time.Time
	LastPaymentDate         *time.Time
	DisbursedAt             *time.Time
	ClosedAt                *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// PenaltyRatePercent is the one-time late fee the overdue scan assesses on
// an instalment when it is first flagged, as a percent of its unpaid
// principal and interest.
var PenaltyRatePercent = decimal.NewFromInt(5)

// InstalmentStatus is derived from the paid/expected relationship, never set
// arbitrarily.
type InstalmentStatus string

const (
	InstalmentPending InstalmentStatus = "PENDING"
	InstalmentPartial InstalmentStatus = "PARTIAL"
	InstalmentPaid    InstalmentStatus = "PAID"
	InstalmentOverdue InstalmentStatus = "OVERDUE"
)

// Instalment is one scheduled due date's expected principal/interest/penalty
// breakdown. paid_X never exceeds expected_X for any component.
type Instalment struct {
	ID                int64
	LoanID            int64
	Sequence          int
	DueDate           time.Time
	ExpectedPrincipal decimal.Decimal
	ExpectedInterest  decimal.Decimal
	ExpectedPenalty   decimal.Decimal
	PaidPrincipal     decimal.Decimal
	PaidInterest      decimal.Decimal
	PaidPenalty       decimal.Decimal
	Status            InstalmentStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OutstandingPenalty returns the unpaid penalty component.
func (i Instalment) OutstandingPenalty() decimal.Decimal {
	return i.ExpectedPenalty.Sub(i.PaidPenalty)
}

// OutstandingInterest returns the unpaid interest component.
func (i Instalment) OutstandingInterest() decimal.Decimal {
	return i.ExpectedInterest.Sub(i.PaidInterest)
}

// OutstandingPrincipal returns the unpaid principal component.
func (i Instalment) OutstandingPrincipal() decimal.Decimal {
	return i.ExpectedPrincipal.Sub(i.PaidPrincipal)
}

// Outstanding returns the total unpaid amount across all components.
func (i Instalment) Outstanding() decimal.Decimal {
	return i.OutstandingPenalty().Add(i.OutstandingInterest()).Add(i.OutstandingPrincipal())
}

// Settled reports whether every component is fully paid.
func (i Instalment) Settled() bool {
	return i.PaidPrincipal.Equal(i.ExpectedPrincipal) &&
		i.PaidInterest.Equal(i.ExpectedInterest) &&
		i.PaidPenalty.Equal(i.ExpectedPenalty)
}

// HasProgress reports whether any component has received payment.
func (i Instalment) HasProgress() bool {
	return i.PaidPrincipal.IsPositive() || i.PaidInterest.IsPositive() || i.PaidPenalty.IsPositive()
}

// RecomputeStatus derives the status after an allocation touched the
// instalment. Overdue flagging is done separately by the batch scan.
func (i *Instalment) RecomputeStatus() {
	switch {
	case i.Settled():
		i.Status = InstalmentPaid
	case i.HasProgress():
		i.Status = InstalmentPartial
	}
}

// Repayment is the immutable record of one payment event. The
// (loan, reference) pair is unique so duplicate gateway callbacks are
// detected and short-circuited.
type Repayment struct {
	ID               int64
	LoanID           int64
	Reference        string
	Amount           decimal.Decimal
	PrincipalApplied decimal.Decimal
	InterestApplied  decimal.Decimal
	PenaltyApplied   decimal.Decimal
	Overpayment      decimal.Decimal
	Method           string
	PaidAt           time.Time
	CreatedAt        time.Time
}

// RestructureType enumerates supported restructuring actions.
type RestructureType string

const (
	RestructureExtendTerm        RestructureType = "EXTEND_TERM"
	RestructureReduceInstallment RestructureType = "REDUCE_INSTALLMENT"
	RestructureAdjustInterest    RestructureType = "ADJUST_INTEREST"
	RestructureWaivePenalty      RestructureType = "WAIVE_PENALTY"
	RestructureGracePeriod       RestructureType = "GRACE_PERIOD"
)

// Recalculates reports whether the action re-derives the amortization and
// regenerates the future schedule.
func (t RestructureType) Recalculates() bool {
	switch t {
	case RestructureExtendTerm, RestructureReduceInstallment, RestructureAdjustInterest:
		return true
	}
	return false
}

// Restructure is the immutable audit record of one restructuring action.
type Restructure struct {
	ID           int64
	LoanID       int64
	Type         RestructureType
	OldTerm      int
	NewTerm      int
	OldRate      decimal.Decimal
	NewRate      decimal.Decimal
	OldPayment   decimal.Decimal
	NewPayment   decimal.Decimal
	WaivedAmount decimal.Decimal
	GraceDays    int
	Reason       string
	CreatedAt    time.Time
}

// DefaultStatus tracks a collection case on a loan.
type DefaultStatus string

const (
	DefaultOpen         DefaultStatus = "DEFAULTED"
	DefaultInCollection DefaultStatus = "IN_COLLECTION"
	DefaultResolved     DefaultStatus = "RESOLVED"
)

// DefaultRecord is opened when a loan falls behind and auto-resolved once
// the loan is fully repaid or caught up.
type DefaultRecord struct {
	ID         int64
	LoanID     int64
	Status     DefaultStatus
	OpenedAt   time.Time
	ResolvedAt *time.Time
}
