package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

type createRequest struct {
	MemberID                int64           `json:"member_id" validate:"required,gt=0"`
	Principal               decimal.Decimal `json:"principal" validate:"required"`
	TermMonths              int             `json:"term_months" validate:"required,gt=0"`
	InterestRate            decimal.Decimal `json:"interest_rate" validate:"required"`
	InterestType            string          `json:"interest_type" validate:"required,oneof=FLAT REDUCING_BALANCE"`
	Frequency               string          `json:"frequency" validate:"omitempty,oneof=MONTHLY WEEKLY DAILY"`
	InterestDeductedUpfront bool            `json:"interest_deducted_upfront"`
}

type repaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Reference string          `json:"reference" validate:"required,max=64"`
	Method    string          `json:"method" validate:"omitempty,max=32"`
	PaidAt    *time.Time      `json:"paid_at"`
}

type restructureRequest struct {
	Type        string          `json:"type" validate:"required,oneof=EXTEND_TERM REDUCE_INSTALLMENT ADJUST_INTEREST WAIVE_PENALTY GRACE_PERIOD"`
	NewTerm     int             `json:"new_term"`
	NewPayment  decimal.Decimal `json:"new_payment"`
	NewRate     decimal.Decimal `json:"new_rate"`
	WaiveAmount decimal.Decimal `json:"waive_amount"`
	GraceDays   int             `json:"grace_days"`
	Reason      string          `json:"reason" validate:"omitempty,max=255"`
}

type quoteRequest struct {
	Principal    decimal.Decimal `json:"principal" validate:"required"`
	TermMonths   int             `json:"term_months" validate:"required,gt=0"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"required"`
	InterestType string          `json:"interest_type" validate:"required,oneof=FLAT REDUCING_BALANCE"`
}

type loanResponse struct {
	ID                      int64           `json:"id"`
	MemberID                int64           `json:"member_id"`
	Principal               decimal.Decimal `json:"principal"`
	TermMonths              int             `json:"term_months"`
	InterestRate            decimal.Decimal `json:"interest_rate"`
	InterestType            InterestType    `json:"interest_type"`
	Frequency               Frequency       `json:"frequency"`
	MonthlyRepayment        decimal.Decimal `json:"monthly_repayment"`
	TotalInterest           decimal.Decimal `json:"total_interest"`
	TotalRepayment          decimal.Decimal `json:"total_repayment"`
	AmountRepaid            decimal.Decimal `json:"amount_repaid"`
	OutstandingBalance      decimal.Decimal `json:"outstanding_balance"`
	Status                  LoanStatus      `json:"status"`
	InterestDeductedUpfront bool            `json:"interest_deducted_upfront"`
	IsRestructured          bool            `json:"is_restructured"`
	NextPaymentDate         *time.Time      `json:"next_payment_date,omitempty"`
	LastPaymentDate         *time.Time      `json:"last_payment_date,omitempty"`
	DisbursedAt             *time.Time      `json:"disbursed_at,omitempty"`
	ClosedAt                *time.Time      `json:"closed_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
}

func toLoanResponse(l LoanApplication) loanResponse {
	return loanResponse{
		ID:                      l.ID,
		MemberID:                l.MemberID,
		Principal:               l.Principal,
		TermMonths:              l.TermMonths,
		InterestRate:            l.InterestRate,
		InterestType:            l.InterestType,
		Frequency:               l.Frequency,
		MonthlyRepayment:        l.MonthlyRepayment,
		TotalInterest:           l.TotalInterest,
		TotalRepayment:          l.TotalRepayment,
		AmountRepaid:            l.AmountRepaid,
		OutstandingBalance:      l.OutstandingBalance,
		Status:                  l.Status,
		InterestDeductedUpfront: l.InterestDeductedUpfront,
		IsRestructured:          l.IsRestructured,
		NextPaymentDate:         l.NextPaymentDate,
		LastPaymentDate:         l.LastPaymentDate,
		DisbursedAt:             l.DisbursedAt,
		ClosedAt:                l.ClosedAt,
		CreatedAt:               l.CreatedAt,
	}
}

type instalmentResponse struct {
	Sequence          int              `json:"sequence"`
	DueDate           time.Time        `json:"due_date"`
	ExpectedPrincipal decimal.Decimal  `json:"expected_principal"`
	ExpectedInterest  decimal.Decimal  `json:"expected_interest"`
	ExpectedPenalty   decimal.Decimal  `json:"expected_penalty"`
	PaidPrincipal     decimal.Decimal  `json:"paid_principal"`
	PaidInterest      decimal.Decimal  `json:"paid_interest"`
	PaidPenalty       decimal.Decimal  `json:"paid_penalty"`
	Status            InstalmentStatus `json:"status"`
}

func toInstalmentResponses(insts []Instalment) []instalmentResponse {
	out := make([]instalmentResponse, 0, len(insts))
	for _, i := range insts {
		out = append(out, instalmentResponse{
			Sequence:          i.Sequence,
			DueDate:           i.DueDate,
			ExpectedPrincipal: i.ExpectedPrincipal,
			ExpectedInterest:  i.ExpectedInterest,
			ExpectedPenalty:   i.ExpectedPenalty,
			PaidPrincipal:     i.PaidPrincipal,
			PaidInterest:      i.PaidInterest,
			PaidPenalty:       i.PaidPenalty,
			Status:            i.Status,
		})
	}
	return out
}

type repaymentResponse struct {
	ID               int64           `json:"id"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	PrincipalApplied decimal.Decimal `json:"principal_applied"`
	InterestApplied  decimal.Decimal `json:"interest_applied"`
	PenaltyApplied   decimal.Decimal `json:"penalty_applied"`
	Overpayment      decimal.Decimal `json:"overpayment"`
	Duplicate        bool            `json:"duplicate"`
	OutstandingAfter decimal.Decimal `json:"outstanding_after"`
	LoanStatus       LoanStatus      `json:"loan_status"`
}

type restructureResponse struct {
	ID           int64           `json:"id"`
	LoanID       int64           `json:"loan_id"`
	Type         RestructureType `json:"type"`
	OldTerm      int             `json:"old_term"`
	NewTerm      int             `json:"new_term"`
	OldRate      decimal.Decimal `json:"old_rate"`
	NewRate      decimal.Decimal `json:"new_rate"`
	OldPayment   decimal.Decimal `json:"old_payment"`
	NewPayment   decimal.Decimal `json:"new_payment"`
	WaivedAmount decimal.Decimal `json:"waived_amount"`
	GraceDays    int             `json:"grace_days"`
	Reason       string          `json:"reason,omitempty"`
}
