package loans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/chart"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/journals"
	"github.com/pamoja-sacco/pamoja-sacco/internal/members"
	"github.com/pamoja-sacco/pamoja-sacco/internal/notify"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// Stores resolves the per-tenant persistence for loan operations.
type Stores interface {
	Loans(ctx context.Context, orgCode string) (Repository, error)
	Members(ctx context.Context, orgCode string) (members.Repository, error)
	Audit(ctx context.Context, orgCode string) (shared.AuditSink, error)
}

type Service struct {
	stores   Stores
	notifier notify.Sender
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(stores Stores, notifier notify.Sender, logger *slog.Logger) *Service {
	return &Service{stores: stores, notifier: notifier, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput describes a new loan application.
type CreateInput struct {
	MemberID                int64
	Principal               decimal.Decimal
	TermMonths              int
	InterestRate            decimal.Decimal
	InterestType            InterestType
	Frequency               Frequency
	InterestDeductedUpfront bool
}

// Create quotes the loan via the calculator and stores it pending approval.
func (s *Service) Create(ctx context.Context, orgCode string, input CreateInput) (LoanApplication, error) {
	if input.MemberID == 0 {
		return LoanApplication{}, shared.Validationf("member id required")
	}
	if input.Frequency == "" {
		input.Frequency = FrequencyMonthly
	}
	terms, err := CalculateLoan(input.Principal, input.TermMonths, input.InterestRate, input.InterestType)
	if err != nil {
		return LoanApplication{}, err
	}
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return LoanApplication{}, err
	}
	loan := LoanApplication{
		MemberID:                input.MemberID,
		Principal:               input.Principal,
		TermMonths:              input.TermMonths,
		InterestRate:            input.InterestRate,
		InterestType:            input.InterestType,
		Frequency:               input.Frequency,
		MonthlyRepayment:        terms.MonthlyRepayment,
		TotalInterest:           terms.TotalInterest,
		TotalRepayment:          terms.TotalRepayment,
		OutstandingBalance:      terms.TotalRepayment,
		Status:                  LoanStatusPending,
		InterestDeductedUpfront: input.InterestDeductedUpfront,
	}
	if loan.InterestDeductedUpfront {
		// Interest is collected at disbursement, so the repayable balance
		// is the principal alone.
		loan.TotalRepayment = loan.Principal
		loan.OutstandingBalance = loan.Principal
	}
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertLoan(ctx, loan)
		if err != nil {
			return err
		}
		loan = inserted
		return nil
	})
	if err != nil {
		return LoanApplication{}, err
	}
	s.audit(ctx, orgCode, "loan.create", loan.ID, nil, map[string]any{
		"principal": loan.Principal.String(),
		"term":      loan.TermMonths,
	})
	return loan, nil
}

// Approve moves a pending application to approved.
func (s *Service) Approve(ctx context.Context, orgCode string, loanID int64) (LoanApplication, error) {
	return s.transition(ctx, orgCode, loanID, LoanStatusPending, LoanStatusApproved, "loan.approve")
}

// Reject terminally rejects a pending application.
func (s *Service) Reject(ctx context.Context, orgCode string, loanID int64) (LoanApplication, error) {
	return s.transition(ctx, orgCode, loanID, LoanStatusPending, LoanStatusRejected, "loan.reject")
}

func (s *Service) transition(ctx context.Context, orgCode string, loanID int64, from, to LoanStatus, action string) (LoanApplication, error) {
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return LoanApplication{}, err
	}
	var loan LoanApplication
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if current.Status != from {
			return shared.StateConflictf("loan %d is %s, expected %s", loanID, current.Status, from)
		}
		current.Status = to
		if err := tx.UpdateLoan(ctx, current); err != nil {
			return err
		}
		loan = current
		return nil
	})
	if err != nil {
		return LoanApplication{}, err
	}
	s.audit(ctx, orgCode, action, loanID, map[string]any{"status": string(from)}, map[string]any{"status": string(to)})
	return loan, nil
}

// Disburse pays an approved loan out: the instalment schedule is generated,
// the receivable is established in the ledger and cash leaves the till. In
// upfront-interest mode the member receives principal minus interest and no
// interest accrues afterwards.
func (s *Service) Disburse(ctx context.Context, orgCode string, loanID int64) (LoanApplication, error) {
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return LoanApplication{}, err
	}
	now := s.now()
	var loan LoanApplication
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if current.Status != LoanStatusApproved {
			return shared.StateConflictf("loan %d is %s, only approved loans disburse", loanID, current.Status)
		}
		schedule := BuildSchedule(current, now)
		if err := tx.InsertInstalments(ctx, schedule); err != nil {
			return err
		}
		current.Status = LoanStatusDisbursed
		current.DisbursedAt = &now
		if len(schedule) > 0 {
			first := schedule[0].DueDate
			current.NextPaymentDate = &first
		}
		if err := tx.UpdateLoan(ctx, current); err != nil {
			return err
		}
		if err := s.postDisbursement(ctx, tx, current, now); err != nil {
			return err
		}
		loan = current
		return nil
	})
	if err != nil {
		return LoanApplication{}, err
	}
	s.audit(ctx, orgCode, "loan.disburse", loanID, nil, map[string]any{"principal": loan.Principal.String()})
	s.notifyMember(ctx, orgCode, loan.MemberID,
		fmt.Sprintf("Your loan of %s has been disbursed.", notify.FormatAmount("KES", loan.Principal)))
	return loan, nil
}

func (s *Service) postDisbursement(ctx context.Context, tx TxRepository, loan LoanApplication, at time.Time) error {
	receivable, err := tx.AccountIDByCode(ctx, chart.LoansReceivable)
	if err != nil {
		return err
	}
	cash, err := tx.AccountIDByCode(ctx, chart.Cash)
	if err != nil {
		return err
	}
	lines := []journals.PostingLineInput{
		{AccountID: receivable, Debit: loan.Principal},
	}
	if loan.InterestDeductedUpfront && loan.TotalInterest.IsPositive() {
		income, err := tx.AccountIDByCode(ctx, chart.InterestIncome)
		if err != nil {
			return err
		}
		lines = append(lines,
			journals.PostingLineInput{AccountID: cash, Credit: loan.Principal.Sub(loan.TotalInterest)},
			journals.PostingLineInput{AccountID: income, Credit: loan.TotalInterest},
		)
	} else {
		lines = append(lines, journals.PostingLineInput{AccountID: cash, Credit: loan.Principal})
	}
	_, err = journals.PostWithinTx(ctx, tx.Journal(), journals.PostingInput{
		Date:        at,
		Description: fmt.Sprintf("Loan %d disbursement", loan.ID),
		SourceType:  "loan_disbursement",
		SourceID:    uuid.New(),
		Lines:       lines,
	})
	return err
}

// ApplyPaymentInput is one cash payment against a loan.
type ApplyPaymentInput struct {
	LoanID    int64
	Amount    decimal.Decimal
	Reference string
	Method    string
	PaidAt    time.Time
}

// ApplyPaymentResult reports the repayment and whether it was a replay of
// an already-processed reference.
type ApplyPaymentResult struct {
	Repayment Repayment
	Loan      LoanApplication
	Duplicate bool
}

// ApplyPayment allocates a cash payment across the loan's outstanding
// schedule and posts the matching journal entry, all in one transaction.
// A reference seen before returns the original repayment without touching
// balances; the unique index on (loan_id, reference) closes the race window
// between two concurrent submissions.
func (s *Service) ApplyPayment(ctx context.Context, orgCode string, input ApplyPaymentInput) (ApplyPaymentResult, error) {
	if !input.Amount.IsPositive() {
		return ApplyPaymentResult{}, shared.Validationf("payment amount must be positive")
	}
	if input.Reference == "" {
		return ApplyPaymentResult{}, shared.Validationf("payment reference required")
	}
	if input.PaidAt.IsZero() {
		input.PaidAt = s.now()
	}
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return ApplyPaymentResult{}, err
	}

	var result ApplyPaymentResult
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loan, err := tx.GetLoanForUpdate(ctx, input.LoanID)
		if err != nil {
			return err
		}
		if existing, found, err := tx.FindRepayment(ctx, loan.ID, input.Reference); err != nil {
			return err
		} else if found {
			result = ApplyPaymentResult{Repayment: existing, Loan: loan, Duplicate: true}
			return nil
		}
		if !loan.Status.AcceptsRepayment() {
			return shared.StateConflictf("loan %d is %s and does not accept repayments", loan.ID, loan.Status)
		}

		instalments, err := tx.ListInstalmentsForUpdate(ctx, loan.ID)
		if err != nil {
			return err
		}
		ptrs := make([]*Instalment, len(instalments))
		for i := range instalments {
			ptrs[i] = &instalments[i]
		}

		alloc := AllocatePayment(&loan, ptrs, input.Amount)
		paidOff := ApplyAllocation(&loan, ptrs, alloc, input.PaidAt)

		for _, inst := range ptrs {
			if err := tx.UpdateInstalment(ctx, *inst); err != nil {
				return err
			}
		}
		if paidOff {
			if err := tx.ResolveOpenDefaults(ctx, loan.ID, input.PaidAt); err != nil {
				return err
			}
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		if alloc.Overpayment.IsPositive() {
			if err := tx.CreditMemberSavings(ctx, loan.MemberID, alloc.Overpayment); err != nil {
				return err
			}
		}

		rep, err := tx.InsertRepayment(ctx, Repayment{
			LoanID:           loan.ID,
			Reference:        input.Reference,
			Amount:           input.Amount,
			PrincipalApplied: alloc.PrincipalApplied,
			InterestApplied:  alloc.InterestApplied,
			PenaltyApplied:   alloc.PenaltyApplied,
			Overpayment:      alloc.Overpayment,
			Method:           input.Method,
			PaidAt:           input.PaidAt,
		})
		if err != nil {
			return err
		}
		if err := s.postRepayment(ctx, tx, loan, rep); err != nil {
			return err
		}
		result = ApplyPaymentResult{Repayment: rep, Loan: loan}
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateOperation) {
		// Lost the insert race to a concurrent delivery of the same
		// reference; the winner's record is the result.
		return s.existingRepayment(ctx, orgCode, input.LoanID, input.Reference)
	}
	if err != nil {
		return ApplyPaymentResult{}, err
	}
	if result.Duplicate {
		return result, nil
	}

	s.audit(ctx, orgCode, "loan.repayment", input.LoanID, nil, map[string]any{
		"reference": input.Reference,
		"amount":    input.Amount.String(),
	})
	s.notifyMember(ctx, orgCode, result.Loan.MemberID,
		fmt.Sprintf("Payment of %s received. Outstanding balance: %s.",
			notify.FormatAmount("KES", input.Amount),
			notify.FormatAmount("KES", result.Loan.OutstandingBalance)))
	return result, nil
}

func (s *Service) existingRepayment(ctx context.Context, orgCode string, loanID int64, reference string) (ApplyPaymentResult, error) {
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return ApplyPaymentResult{}, err
	}
	loan, err := repo.GetLoan(ctx, loanID)
	if err != nil {
		return ApplyPaymentResult{}, err
	}
	reps, err := repo.ListRepayments(ctx, loanID)
	if err != nil {
		return ApplyPaymentResult{}, err
	}
	for _, rep := range reps {
		if rep.Reference == reference {
			return ApplyPaymentResult{Repayment: rep, Loan: loan, Duplicate: true}, nil
		}
	}
	return ApplyPaymentResult{}, shared.ErrNotFound
}

func (s *Service) postRepayment(ctx context.Context, tx TxRepository, loan LoanApplication, rep Repayment) error {
	cash, err := tx.AccountIDByCode(ctx, chart.Cash)
	if err != nil {
		return err
	}
	lines := []journals.PostingLineInput{{AccountID: cash, Debit: rep.Amount}}
	if rep.PrincipalApplied.IsPositive() {
		receivable, err := tx.AccountIDByCode(ctx, chart.LoansReceivable)
		if err != nil {
			return err
		}
		lines = append(lines, journals.PostingLineInput{AccountID: receivable, Credit: rep.PrincipalApplied})
	}
	if rep.InterestApplied.IsPositive() {
		income, err := tx.AccountIDByCode(ctx, chart.InterestIncome)
		if err != nil {
			return err
		}
		lines = append(lines, journals.PostingLineInput{AccountID: income, Credit: rep.InterestApplied})
	}
	if rep.PenaltyApplied.IsPositive() {
		income, err := tx.AccountIDByCode(ctx, chart.PenaltyIncome)
		if err != nil {
			return err
		}
		lines = append(lines, journals.PostingLineInput{AccountID: income, Credit: rep.PenaltyApplied})
	}
	if rep.Overpayment.IsPositive() {
		savings, err := tx.AccountIDByCode(ctx, chart.MemberSavings)
		if err != nil {
			return err
		}
		lines = append(lines, journals.PostingLineInput{AccountID: savings, Credit: rep.Overpayment})
	}
	_, err = journals.PostWithinTx(ctx, tx.Journal(), journals.PostingInput{
		Date:        rep.PaidAt,
		Description: fmt.Sprintf("Loan %d repayment %s", loan.ID, rep.Reference),
		SourceType:  "loan_repayment",
		SourceID:    uuid.New(),
		Lines:       lines,
	})
	return err
}

// Restructure executes one restructuring action: the loan is re-derived
// from its remaining principal, future instalments are regenerated and an
// immutable audit record is written. Paid history is never edited.
func (s *Service) Restructure(ctx context.Context, orgCode string, loanID int64, rtype RestructureType, params RestructureParams) (Restructure, error) {
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return Restructure{}, err
	}
	now := s.now()
	var record Restructure
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if !loan.Status.AcceptsRepayment() {
			return shared.StateConflictf("loan %d is %s and cannot be restructured", loanID, loan.Status)
		}
		instalments, err := tx.ListInstalmentsForUpdate(ctx, loan.ID)
		if err != nil {
			return err
		}
		plan, err := PlanRestructure(loan, instalments, rtype, params)
		if err != nil {
			return err
		}

		record = Restructure{
			LoanID:     loan.ID,
			Type:       rtype,
			OldTerm:    loan.TermMonths,
			OldRate:    loan.InterestRate,
			OldPayment: loan.MonthlyRepayment,
			Reason:     params.Reason,
		}

		switch {
		case rtype.Recalculates():
			plan.ApplyPlan(&loan)
			_, regenerated := plan.RegenerateSchedule(loan, instalments, now)
			if err := tx.DeleteUntouchedInstalments(ctx, loan.ID); err != nil {
				return err
			}
			if err := tx.InsertInstalments(ctx, regenerated); err != nil {
				return err
			}
			if len(regenerated) > 0 {
				first := regenerated[0].DueDate
				loan.NextPaymentDate = &first
			}
		case rtype == RestructureWaivePenalty:
			loan.OutstandingBalance = loan.OutstandingBalance.Sub(params.WaiveAmount)
			if loan.OutstandingBalance.IsNegative() {
				loan.OutstandingBalance = decimal.Zero
			}
			loan.IsRestructured = true
			loan.Status = LoanStatusRestructured
			record.WaivedAmount = params.WaiveAmount
			if err := s.postPenaltyWaiver(ctx, tx, loan, params.WaiveAmount, now); err != nil {
				return err
			}
		case rtype == RestructureGracePeriod:
			next := now
			if loan.NextPaymentDate != nil {
				next = *loan.NextPaymentDate
			}
			shifted := next.AddDate(0, 0, params.GraceDays)
			loan.NextPaymentDate = &shifted
			loan.IsRestructured = true
			loan.Status = LoanStatusRestructured
			record.GraceDays = params.GraceDays
		}

		record.NewTerm = loan.TermMonths
		record.NewRate = loan.InterestRate
		record.NewPayment = loan.MonthlyRepayment

		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		inserted, err := tx.InsertRestructure(ctx, record)
		if err != nil {
			return err
		}
		record = inserted
		return nil
	})
	if err != nil {
		return Restructure{}, err
	}
	s.audit(ctx, orgCode, "loan.restructure", loanID,
		map[string]any{"term": record.OldTerm, "rate": record.OldRate.String(), "payment": record.OldPayment.String()},
		map[string]any{"type": string(rtype), "term": record.NewTerm, "rate": record.NewRate.String(), "payment": record.NewPayment.String()})
	return record, nil
}

func (s *Service) postPenaltyWaiver(ctx context.Context, tx TxRepository, loan LoanApplication, amount decimal.Decimal, at time.Time) error {
	expense, err := tx.AccountIDByCode(ctx, chart.PenaltyWaiverExpense)
	if err != nil {
		return err
	}
	receivable, err := tx.AccountIDByCode(ctx, chart.PenaltyReceivable)
	if err != nil {
		return err
	}
	_, err = journals.PostWithinTx(ctx, tx.Journal(), journals.PostingInput{
		Date:        at,
		Description: fmt.Sprintf("Loan %d penalty waiver", loan.ID),
		SourceType:  "loan_restructure",
		SourceID:    uuid.New(),
		Lines: []journals.PostingLineInput{
			{AccountID: expense, Debit: amount},
			{AccountID: receivable, Credit: amount},
		},
	})
	return err
}

// OverdueScan flags overdue instalments, assesses the one-time late fee on
// newly flagged ones and opens default records for loans at least three
// instalments behind. Runs daily per organization; every step is idempotent
// so a retried scan charges nothing twice.
func (s *Service) OverdueScan(ctx context.Context, orgCode string) (flagged, defaulted int64, err error) {
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return 0, 0, err
	}
	asOf := s.now()
	flagged, err = repo.MarkOverdueInstalments(ctx, asOf)
	if err != nil {
		return 0, 0, err
	}
	if _, _, err = repo.AssessPenalties(ctx, asOf, PenaltyRatePercent); err != nil {
		return flagged, 0, err
	}
	defaulted, err = repo.OpenDefaultsForDelinquents(ctx, asOf, 3)
	if err != nil {
		return flagged, 0, err
	}
	return flagged, defaulted, nil
}

// Get returns one loan with its schedule.
func (s *Service) Get(ctx context.Context, orgCode string, loanID int64) (LoanApplication, []Instalment, error) {
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return LoanApplication{}, nil, err
	}
	loan, err := repo.GetLoan(ctx, loanID)
	if err != nil {
		return LoanApplication{}, nil, err
	}
	instalments, err := repo.ListInstalments(ctx, loanID)
	if err != nil {
		return LoanApplication{}, nil, err
	}
	return loan, instalments, nil
}

// List returns a page of loans.
func (s *Service) List(ctx context.Context, orgCode string, limit, offset int) ([]LoanApplication, int, error) {
	repo, err := s.stores.Loans(ctx, orgCode)
	if err != nil {
		return nil, 0, err
	}
	return repo.ListLoans(ctx, limit, offset)
}

func (s *Service) audit(ctx context.Context, orgCode string, action string, loanID int64, oldValues, newValues map[string]any) {
	sink, err := s.stores.Audit(ctx, orgCode)
	if err != nil || sink == nil {
		return
	}
	_ = sink.Record(ctx, shared.AuditLog{
		ActorID:   shared.ActorFromContext(ctx),
		Action:    action,
		Entity:    "loan",
		EntityID:  fmt.Sprintf("%d", loanID),
		OldValues: oldValues,
		NewValues: newValues,
		At:        s.now(),
	})
}

func (s *Service) notifyMember(ctx context.Context, orgCode string, memberID int64, body string) {
	if s.notifier == nil {
		return
	}
	store, err := s.stores.Members(ctx, orgCode)
	if err != nil {
		return
	}
	member, err := store.Get(ctx, memberID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("notify lookup failed", slog.Int64("member", memberID), slog.Any("error", err))
		}
		return
	}
	notify.BestEffort(ctx, s.notifier, s.logger, member.Phone, body)
}
