package loans

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/accounts"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/chart"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/journals"
	"github.com/pamoja-sacco/pamoja-sacco/internal/members"
	"github.com/pamoja-sacco/pamoja-sacco/internal/money"
	"github.com/pamoja-sacco/pamoja-sacco/internal/notify"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// fakeState is the in-memory tenant store backing the service tests.
type fakeState struct {
	loans        map[int64]*LoanApplication
	instalments  map[int64][]*Instalment
	repayments   []Repayment
	restructures []Restructure
	defaults     []*DefaultRecord
	members      map[int64]*members.Member
	accounts     map[int64]*accounts.Account
	codes        map[string]int64
	entries      []journals.JournalEntry
	lines        map[int64][]journals.PostingLineInput
	audits       []shared.AuditLog
	nextID       int64
}

func newFakeState() *fakeState {
	s := &fakeState{
		loans:       map[int64]*LoanApplication{},
		instalments: map[int64][]*Instalment{},
		members:     map[int64]*members.Member{},
		accounts:    map[int64]*accounts.Account{},
		codes:       map[string]int64{},
		lines:       map[int64][]journals.PostingLineInput{},
	}
	seed := []struct {
		code string
		typ  accounts.AccountType
	}{
		{chart.Cash, accounts.AccountTypeAsset},
		{chart.LoansReceivable, accounts.AccountTypeAsset},
		{chart.PenaltyReceivable, accounts.AccountTypeAsset},
		{chart.MemberSavings, accounts.AccountTypeLiability},
		{chart.InterestIncome, accounts.AccountTypeIncome},
		{chart.PenaltyIncome, accounts.AccountTypeIncome},
		{chart.PenaltyWaiverExpense, accounts.AccountTypeExpense},
	}
	for _, acc := range seed {
		id := s.id()
		s.accounts[id] = &accounts.Account{ID: id, Code: acc.code, Type: acc.typ, IsActive: true}
		s.codes[acc.code] = id
	}
	s.members[1] = &members.Member{ID: 1, MemberNumber: "M001", Name: "Achieng", Phone: "+254700000001"}
	return s
}

func (s *fakeState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeState) balance(code string) decimal.Decimal {
	return s.accounts[s.codes[code]].Balance
}

type fakeStores struct{ state *fakeState }

func (f fakeStores) Loans(ctx context.Context, org string) (Repository, error) {
	return fakeRepo{state: f.state}, nil
}

func (f fakeStores) Members(ctx context.Context, org string) (members.Repository, error) {
	return fakeMembers{state: f.state}, nil
}

func (f fakeStores) Audit(ctx context.Context, org string) (shared.AuditSink, error) {
	return fakeAudit{state: f.state}, nil
}

type fakeAudit struct{ state *fakeState }

func (f fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.state.audits = append(f.state.audits, log)
	return nil
}

type fakeMembers struct{ state *fakeState }

func (f fakeMembers) Get(ctx context.Context, id int64) (members.Member, error) {
	m, ok := f.state.members[id]
	if !ok {
		return members.Member{}, shared.ErrNotFound
	}
	return *m, nil
}

func (f fakeMembers) List(ctx context.Context, limit, offset int) ([]members.Member, int, error) {
	var out []members.Member
	for _, m := range f.state.members {
		out = append(out, *m)
	}
	return out, len(out), nil
}

type fakeRepo struct{ state *fakeState }

func (f fakeRepo) GetLoan(ctx context.Context, id int64) (LoanApplication, error) {
	loan, ok := f.state.loans[id]
	if !ok {
		return LoanApplication{}, shared.ErrNotFound
	}
	return *loan, nil
}

func (f fakeRepo) ListLoans(ctx context.Context, limit, offset int) ([]LoanApplication, int, error) {
	var out []LoanApplication
	for _, loan := range f.state.loans {
		out = append(out, *loan)
	}
	return out, len(out), nil
}

func (f fakeRepo) ListInstalments(ctx context.Context, loanID int64) ([]Instalment, error) {
	var out []Instalment
	for _, inst := range f.state.instalments[loanID] {
		out = append(out, *inst)
	}
	return out, nil
}

func (f fakeRepo) ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error) {
	var out []Repayment
	for _, rep := range f.state.repayments {
		if rep.LoanID == loanID {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (f fakeRepo) MarkOverdueInstalments(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	for _, insts := range f.state.instalments {
		for _, inst := range insts {
			if inst.DueDate.Before(asOf) && !inst.Settled() && inst.Status != InstalmentOverdue {
				inst.Status = InstalmentOverdue
				n++
			}
		}
	}
	return n, nil
}

func (f fakeRepo) AssessPenalties(ctx context.Context, asOf time.Time, ratePercent decimal.Decimal) (int64, decimal.Decimal, error) {
	var count int64
	total := decimal.Zero
	for loanID, insts := range f.state.instalments {
		charged := decimal.Zero
		for _, inst := range insts {
			if inst.Status != InstalmentOverdue || !inst.DueDate.Before(asOf) || !inst.ExpectedPenalty.IsZero() {
				continue
			}
			base := inst.OutstandingPrincipal().Add(inst.OutstandingInterest())
			if !base.IsPositive() {
				continue
			}
			inst.ExpectedPenalty = money.Two(base.Mul(ratePercent).Div(decimal.NewFromInt(100)))
			charged = charged.Add(inst.ExpectedPenalty)
			count++
		}
		if charged.IsPositive() {
			loan := f.state.loans[loanID]
			loan.OutstandingBalance = loan.OutstandingBalance.Add(charged)
			total = total.Add(charged)
		}
	}
	return count, total, nil
}

func (f fakeRepo) OpenDefaultsForDelinquents(ctx context.Context, asOf time.Time, minOverdue int) (int64, error) {
	var n int64
	for loanID, insts := range f.state.instalments {
		overdue := 0
		for _, inst := range insts {
			if inst.Status == InstalmentOverdue {
				overdue++
			}
		}
		if overdue < minOverdue {
			continue
		}
		open := false
		for _, d := range f.state.defaults {
			if d.LoanID == loanID && d.Status != DefaultResolved {
				open = true
			}
		}
		if !open {
			f.state.defaults = append(f.state.defaults, &DefaultRecord{ID: f.state.id(), LoanID: loanID, Status: DefaultOpen, OpenedAt: asOf})
			n++
		}
	}
	return n, nil
}

func (f fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, fakeTx{state: f.state})
}

type fakeTx struct{ state *fakeState }

func (f fakeTx) InsertLoan(ctx context.Context, loan LoanApplication) (LoanApplication, error) {
	loan.ID = f.state.id()
	loan.CreatedAt = time.Now()
	stored := loan
	f.state.loans[loan.ID] = &stored
	return loan, nil
}

func (f fakeTx) GetLoanForUpdate(ctx context.Context, id int64) (LoanApplication, error) {
	loan, ok := f.state.loans[id]
	if !ok {
		return LoanApplication{}, shared.ErrNotFound
	}
	return *loan, nil
}

func (f fakeTx) ListInstalmentsForUpdate(ctx context.Context, loanID int64) ([]Instalment, error) {
	var out []Instalment
	for _, inst := range f.state.instalments[loanID] {
		out = append(out, *inst)
	}
	return out, nil
}

func (f fakeTx) FindRepayment(ctx context.Context, loanID int64, reference string) (Repayment, bool, error) {
	for _, rep := range f.state.repayments {
		if rep.LoanID == loanID && rep.Reference == reference {
			return rep, true, nil
		}
	}
	return Repayment{}, false, nil
}

func (f fakeTx) InsertRepayment(ctx context.Context, rep Repayment) (Repayment, error) {
	for _, existing := range f.state.repayments {
		if existing.LoanID == rep.LoanID && existing.Reference == rep.Reference {
			return Repayment{}, shared.ErrDuplicateOperation
		}
	}
	rep.ID = f.state.id()
	rep.CreatedAt = time.Now()
	f.state.repayments = append(f.state.repayments, rep)
	return rep, nil
}

func (f fakeTx) UpdateInstalment(ctx context.Context, inst Instalment) error {
	for _, stored := range f.state.instalments[inst.LoanID] {
		if stored.ID == inst.ID {
			*stored = inst
			return nil
		}
	}
	return shared.ErrNotFound
}

func (f fakeTx) UpdateLoan(ctx context.Context, loan LoanApplication) error {
	stored, ok := f.state.loans[loan.ID]
	if !ok {
		return shared.ErrNotFound
	}
	*stored = loan
	return nil
}

func (f fakeTx) DeleteUntouchedInstalments(ctx context.Context, loanID int64) error {
	var kept []*Instalment
	for _, inst := range f.state.instalments[loanID] {
		if inst.HasProgress() {
			kept = append(kept, inst)
		}
	}
	f.state.instalments[loanID] = kept
	return nil
}

func (f fakeTx) InsertInstalments(ctx context.Context, insts []Instalment) error {
	for _, inst := range insts {
		inst.ID = f.state.id()
		stored := inst
		f.state.instalments[inst.LoanID] = append(f.state.instalments[inst.LoanID], &stored)
	}
	return nil
}

func (f fakeTx) InsertRestructure(ctx context.Context, rec Restructure) (Restructure, error) {
	rec.ID = f.state.id()
	rec.CreatedAt = time.Now()
	f.state.restructures = append(f.state.restructures, rec)
	return rec, nil
}

func (f fakeTx) ResolveOpenDefaults(ctx context.Context, loanID int64, at time.Time) error {
	for _, d := range f.state.defaults {
		if d.LoanID == loanID && d.Status != DefaultResolved {
			d.Status = DefaultResolved
			resolved := at
			d.ResolvedAt = &resolved
		}
	}
	return nil
}

func (f fakeTx) CreditMemberSavings(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	member, ok := f.state.members[memberID]
	if !ok {
		return shared.ErrNotFound
	}
	member.SavingsBalance = member.SavingsBalance.Add(amount)
	return nil
}

func (f fakeTx) AccountIDByCode(ctx context.Context, code string) (int64, error) {
	id, ok := f.state.codes[code]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

func (f fakeTx) Journal() journals.TxRepository {
	return fakeJournal{state: f.state}
}

type fakeJournal struct{ state *fakeState }

func (f fakeJournal) InsertEntry(ctx context.Context, in journals.PostingInput, reversalOf *int64) (journals.JournalEntry, error) {
	debit, credit := in.Totals()
	entry := journals.JournalEntry{
		ID:          f.state.id(),
		Date:        in.Date,
		Description: in.Description,
		SourceType:  in.SourceType,
		SourceID:    in.SourceID,
		Status:      journals.EntryStatusPosted,
		TotalDebit:  debit,
		TotalCredit: credit,
	}
	entry.Number = entry.ID
	f.state.entries = append(f.state.entries, entry)
	return entry, nil
}

func (f fakeJournal) InsertLines(ctx context.Context, entryID int64, lines []journals.PostingLineInput) error {
	f.state.lines[entryID] = append(f.state.lines[entryID], lines...)
	return nil
}

func (f fakeJournal) GetEntryWithLines(ctx context.Context, entryID int64) (journals.JournalEntry, error) {
	for _, entry := range f.state.entries {
		if entry.ID == entryID {
			return entry, nil
		}
	}
	return journals.JournalEntry{}, shared.ErrNotFound
}

func (f fakeJournal) MarkReversed(ctx context.Context, originalID, reversalID int64) error {
	return nil
}

func (f fakeJournal) GetAccountForUpdate(ctx context.Context, accountID int64) (accounts.Account, error) {
	acc, ok := f.state.accounts[accountID]
	if !ok {
		return accounts.Account{}, shared.ErrNotFound
	}
	return *acc, nil
}

func (f fakeJournal) AdjustAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	acc, ok := f.state.accounts[accountID]
	if !ok {
		return shared.ErrNotFound
	}
	acc.Balance = acc.Balance.Add(delta)
	return nil
}

func newTestService(state *fakeState, sms *[]string) *Service {
	sender := notify.SenderFunc(func(ctx context.Context, phone, body string) error {
		if sms != nil {
			*sms = append(*sms, body)
		}
		return nil
	})
	svc := NewService(fakeStores{state: state}, sender, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC) })
	return svc
}

func disbursedFlatLoan(t *testing.T, svc *Service) LoanApplication {
	t.Helper()
	ctx := context.Background()
	loan, err := svc.Create(ctx, "nbo", CreateInput{
		MemberID:     1,
		Principal:    dec("12000"),
		TermMonths:   12,
		InterestRate: dec("1"),
		InterestType: InterestFlat,
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "nbo", loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.Disburse(ctx, "nbo", loan.ID)
	require.NoError(t, err)
	return disbursed
}

func TestServiceLifecycleAndDisbursementPosting(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	loan, err := svc.Create(ctx, "nbo", CreateInput{
		MemberID:     1,
		Principal:    dec("12000"),
		TermMonths:   12,
		InterestRate: dec("1"),
		InterestType: InterestFlat,
	})
	require.NoError(t, err)
	require.Equal(t, LoanStatusPending, loan.Status)
	require.True(t, loan.MonthlyRepayment.Equal(dec("1120")))
	require.True(t, loan.OutstandingBalance.Equal(dec("13440")))

	_, err = svc.Disburse(ctx, "nbo", loan.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	_, err = svc.Approve(ctx, "nbo", loan.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "nbo", loan.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	disbursed, err := svc.Disburse(ctx, "nbo", loan.ID)
	require.NoError(t, err)
	require.Equal(t, LoanStatusDisbursed, disbursed.Status)
	require.NotNil(t, disbursed.DisbursedAt)
	require.NotNil(t, disbursed.NextPaymentDate)
	require.Len(t, state.instalments[loan.ID], 12)

	// The disbursement posting moves cash into the receivable.
	require.True(t, state.balance(chart.LoansReceivable).Equal(dec("12000")))
	require.True(t, state.balance(chart.Cash).Equal(dec("-12000")))
	require.Len(t, state.entries, 1)
	require.True(t, state.entries[0].TotalDebit.Equal(state.entries[0].TotalCredit))
}

func TestServiceRejectIsTerminal(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	loan, err := svc.Create(ctx, "nbo", CreateInput{
		MemberID:     1,
		Principal:    dec("5000"),
		TermMonths:   6,
		InterestRate: dec("2"),
		InterestType: InterestFlat,
	})
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "nbo", loan.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "nbo", loan.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestServiceApplyPaymentDuplicateReference(t *testing.T) {
	state := newFakeState()
	var sms []string
	svc := newTestService(state, &sms)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)

	first, err := svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{
		LoanID: loan.ID, Amount: dec("5000"), Reference: "REF1", Method: "MPESA",
	})
	require.NoError(t, err)
	require.False(t, first.Duplicate)
	require.True(t, first.Loan.OutstandingBalance.Equal(dec("8440")))
	entriesAfterFirst := len(state.entries)

	second, err := svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{
		LoanID: loan.ID, Amount: dec("5000"), Reference: "REF1", Method: "MPESA",
	})
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Repayment.ID, second.Repayment.ID)
	require.True(t, second.Loan.OutstandingBalance.Equal(dec("8440")))
	require.Len(t, state.repayments, 1)
	require.Len(t, state.entries, entriesAfterFirst)
}

func TestServiceApplyPaymentValidation(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	_, err := svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{LoanID: 1, Amount: dec("-5"), Reference: "R"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{LoanID: 1, Amount: dec("5")})
	require.ErrorIs(t, err, shared.ErrValidation)

	loan, err := svc.Create(ctx, "nbo", CreateInput{
		MemberID: 1, Principal: dec("5000"), TermMonths: 6, InterestRate: dec("2"), InterestType: InterestFlat,
	})
	require.NoError(t, err)
	_, err = svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{LoanID: loan.ID, Amount: dec("100"), Reference: "R1"})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestServiceApplyPaymentOverpaymentAndPayoff(t *testing.T) {
	state := newFakeState()
	var sms []string
	svc := newTestService(state, &sms)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)

	state.defaults = append(state.defaults, &DefaultRecord{ID: state.id(), LoanID: loan.ID, Status: DefaultOpen, OpenedAt: time.Now()})

	result, err := svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{
		LoanID: loan.ID, Amount: dec("14000"), Reference: "FINAL", Method: "BANK",
	})
	require.NoError(t, err)
	require.Equal(t, LoanStatusPaid, result.Loan.Status)
	require.True(t, result.Repayment.Overpayment.Equal(dec("560")))
	require.True(t, result.Repayment.PrincipalApplied.Equal(dec("12000")))
	require.True(t, result.Repayment.InterestApplied.Equal(dec("1440")))

	require.True(t, state.members[1].SavingsBalance.Equal(dec("560")))
	require.Equal(t, DefaultResolved, state.defaults[0].Status)
	// Liability to the member grows by the overpayment.
	require.True(t, state.balance(chart.MemberSavings).Equal(dec("560")))
	// Cash: -12000 disbursed + 14000 received.
	require.True(t, state.balance(chart.Cash).Equal(dec("2000")))
	require.True(t, state.balance(chart.LoansReceivable).IsZero())
	require.True(t, state.balance(chart.InterestIncome).Equal(dec("1440")))
	require.NotEmpty(t, sms)
}

func TestServiceRestructureWaivePenalty(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)

	record, err := svc.Restructure(ctx, "nbo", loan.ID, RestructureWaivePenalty, RestructureParams{
		WaiveAmount: dec("200"), Reason: "hardship",
	})
	require.NoError(t, err)
	require.True(t, record.WaivedAmount.Equal(dec("200")))

	updated := *state.loans[loan.ID]
	require.Equal(t, LoanStatusRestructured, updated.Status)
	require.True(t, updated.OutstandingBalance.Equal(dec("13240")))
	require.True(t, state.balance(chart.PenaltyWaiverExpense).Equal(dec("200")))
	require.True(t, state.balance(chart.PenaltyReceivable).Equal(dec("-200")))
	require.Len(t, state.restructures, 1)
}

func TestServiceRestructureGracePeriod(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)
	require.NotNil(t, loan.NextPaymentDate)
	before := *loan.NextPaymentDate

	_, err := svc.Restructure(ctx, "nbo", loan.ID, RestructureGracePeriod, RestructureParams{GraceDays: 30})
	require.NoError(t, err)

	updated := *state.loans[loan.ID]
	require.NotNil(t, updated.NextPaymentDate)
	require.Equal(t, before.AddDate(0, 0, 30), *updated.NextPaymentDate)
	require.True(t, updated.IsRestructured)
}

func TestServiceRestructureExtendTermRegeneratesSchedule(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)

	record, err := svc.Restructure(ctx, "nbo", loan.ID, RestructureExtendTerm, RestructureParams{NewTerm: 24})
	require.NoError(t, err)
	require.Equal(t, 24, record.NewTerm)
	require.True(t, record.NewPayment.Equal(dec("620")))

	require.Len(t, state.instalments[loan.ID], 24)
	updated := *state.loans[loan.ID]
	require.Equal(t, 24, updated.TermMonths)
	require.Equal(t, LoanStatusRestructured, updated.Status)
}

func TestServiceRestructureRejectsPendingLoan(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	loan, err := svc.Create(ctx, "nbo", CreateInput{
		MemberID: 1, Principal: dec("5000"), TermMonths: 6, InterestRate: dec("2"), InterestType: InterestFlat,
	})
	require.NoError(t, err)
	_, err = svc.Restructure(ctx, "nbo", loan.ID, RestructureExtendTerm, RestructureParams{NewTerm: 12})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

// Restructuring a loan whose current instalment is only half paid must
// leave the stored schedule reconciled with the loan balance: the kept
// partial row plus the regenerated rows together expect exactly what is
// outstanding.
func TestServiceRestructureAfterPartialPayment(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{
		LoanID: loan.ID, Amount: dec("1120"), Reference: "R1", Method: "MPESA",
	})
	require.NoError(t, err)
	_, err = svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{
		LoanID: loan.ID, Amount: dec("560"), Reference: "R2", Method: "MPESA",
	})
	require.NoError(t, err)

	record, err := svc.Restructure(ctx, "nbo", loan.ID, RestructureExtendTerm, RestructureParams{NewTerm: 18})
	require.NoError(t, err)
	require.True(t, record.NewPayment.Equal(dec("655.56")))

	updated := *state.loans[loan.ID]
	require.True(t, updated.OutstandingBalance.Equal(dec("12360")), "outstanding %s", updated.OutstandingBalance)

	insts := state.instalments[loan.ID]
	require.Len(t, insts, 20)
	due := decimal.Zero
	for _, inst := range insts {
		due = due.Add(inst.Outstanding())
	}
	require.True(t, due.Equal(updated.OutstandingBalance),
		"schedule expects %s, outstanding %s", due, updated.OutstandingBalance)
}

func TestServiceOverdueScan(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)

	// Jump past the first four due dates without any payment.
	svc.WithNow(func() time.Time { return time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC) })
	flagged, defaulted, err := svc.OverdueScan(ctx, "nbo")
	require.NoError(t, err)
	require.Equal(t, int64(4), flagged)
	require.Equal(t, int64(1), defaulted)
	require.Len(t, state.defaults, 1)
	require.Equal(t, loan.ID, state.defaults[0].LoanID)

	// A second scan opens nothing new.
	_, defaulted, err = svc.OverdueScan(ctx, "nbo")
	require.NoError(t, err)
	require.Zero(t, defaulted)
}

// The overdue scan charges each newly flagged instalment a one-time late
// fee and lifts the loan balance by the same amount; rescanning never
// charges twice, and the fee is collected ahead of interest and principal.
func TestServiceOverdueScanAssessesLateFees(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()
	loan := disbursedFlatLoan(t, svc)

	svc.WithNow(func() time.Time { return time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC) })
	flagged, _, err := svc.OverdueScan(ctx, "nbo")
	require.NoError(t, err)
	require.Equal(t, int64(4), flagged)

	// 5% of each overdue instalment's unpaid 1120 is a 56 fee.
	for _, inst := range state.instalments[loan.ID][:4] {
		require.True(t, inst.ExpectedPenalty.Equal(dec("56")), "instalment %d penalty %s", inst.Sequence, inst.ExpectedPenalty)
	}
	require.True(t, state.instalments[loan.ID][4].ExpectedPenalty.IsZero())
	updated := *state.loans[loan.ID]
	require.True(t, updated.OutstandingBalance.Equal(dec("13664")), "outstanding %s", updated.OutstandingBalance)

	// Rescanning assesses nothing further.
	_, _, err = svc.OverdueScan(ctx, "nbo")
	require.NoError(t, err)
	require.True(t, state.loans[loan.ID].OutstandingBalance.Equal(dec("13664")))

	// The next payment clears the oldest fee before anything else.
	result, err := svc.ApplyPayment(ctx, "nbo", ApplyPaymentInput{
		LoanID: loan.ID, Amount: dec("56"), Reference: "PEN1", Method: "MPESA",
	})
	require.NoError(t, err)
	require.True(t, result.Repayment.PenaltyApplied.Equal(dec("56")))
	require.True(t, result.Loan.OutstandingBalance.Equal(dec("13608")))
	require.True(t, state.balance(chart.PenaltyIncome).Equal(dec("56")))
}
