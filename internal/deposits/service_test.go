package deposits

import (
	"context"
	"errors"
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
	"github.com/pamoja-sacco/pamoja-sacco/internal/notify"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSimpleInterest(t *testing.T) {
	// 50000 at 10% annual over 12 months accrues 5000.
	require.True(t, SimpleInterest(dec("50000"), dec("10"), 12).Equal(dec("5000")))
	// Half a year accrues half.
	require.True(t, SimpleInterest(dec("50000"), dec("10"), 6).Equal(dec("2500")))
	require.True(t, SimpleInterest(dec("50000"), dec("0"), 12).IsZero())
}

func TestNewDepositDerivesMaturity(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	dep := NewDeposit(1, dec("50000"), dec("10"), 12, start, true)
	require.Equal(t, start.AddDate(1, 0, 0), dep.MaturityDate)
	require.True(t, dep.ExpectedInterest.Equal(dec("5000")))
	require.True(t, dep.MaturityAmount.Equal(dec("55000")))
	require.Equal(t, DepositActive, dep.Status)
}

func TestRolloverChain(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dep := NewDeposit(1, dec("50000"), dec("10"), 12, start, true)
	dep.ID = 42
	dep.RolloverCount = 2

	today := start.AddDate(1, 0, 0)
	next := dep.Rollover(today)
	require.True(t, next.Principal.Equal(dep.Principal))
	require.Equal(t, 3, next.RolloverCount)
	require.NotNil(t, next.ParentDepositID)
	require.Equal(t, int64(42), *next.ParentDepositID)
	require.Equal(t, today.AddDate(1, 0, 0), next.MaturityDate)
}

// In-memory tenant store for the maturity processor tests.
type fakeState struct {
	deposits map[int64]*FixedDeposit
	members  map[int64]*members.Member
	accounts map[int64]*accounts.Account
	codes    map[string]int64
	entries  []journals.JournalEntry
	audits   []shared.AuditLog
	nextID   int64

	failOn int64 // deposit id whose transaction should fail
}

func newFakeState() *fakeState {
	s := &fakeState{
		deposits: map[int64]*FixedDeposit{},
		members:  map[int64]*members.Member{},
		accounts: map[int64]*accounts.Account{},
		codes:    map[string]int64{},
	}
	seed := []struct {
		code string
		typ  accounts.AccountType
	}{
		{chart.Cash, accounts.AccountTypeAsset},
		{chart.MemberDeposits, accounts.AccountTypeLiability},
		{chart.MemberSavings, accounts.AccountTypeLiability},
		{chart.InterestExpense, accounts.AccountTypeExpense},
	}
	for _, acc := range seed {
		id := s.id()
		s.accounts[id] = &accounts.Account{ID: id, Code: acc.code, Type: acc.typ, IsActive: true}
		s.codes[acc.code] = id
	}
	s.members[1] = &members.Member{ID: 1, MemberNumber: "M001", Name: "Otieno", Phone: "+254700000002"}
	return s
}

func (s *fakeState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeState) balance(code string) decimal.Decimal {
	return s.accounts[s.codes[code]].Balance
}

func (s *fakeState) addDeposit(dep FixedDeposit) FixedDeposit {
	dep.ID = s.id()
	stored := dep
	s.deposits[dep.ID] = &stored
	return dep
}

type fakeStores struct{ state *fakeState }

func (f fakeStores) Deposits(ctx context.Context, org string) (Repository, error) {
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
	return nil, 0, nil
}

type fakeRepo struct{ state *fakeState }

func (f fakeRepo) Get(ctx context.Context, id int64) (FixedDeposit, error) {
	dep, ok := f.state.deposits[id]
	if !ok {
		return FixedDeposit{}, shared.ErrNotFound
	}
	return *dep, nil
}

func (f fakeRepo) List(ctx context.Context, memberID int64, limit, offset int) ([]FixedDeposit, int, error) {
	var out []FixedDeposit
	for _, dep := range f.state.deposits {
		if memberID == 0 || dep.MemberID == memberID {
			out = append(out, *dep)
		}
	}
	return out, len(out), nil
}

func (f fakeRepo) MaturedIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	var ids []int64
	for id, dep := range f.state.deposits {
		if dep.Matured(asOf) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Snapshot so a failed item rolls back, matching per-item isolation.
	snapshot := map[int64]FixedDeposit{}
	for id, dep := range f.state.deposits {
		snapshot[id] = *dep
	}
	if err := fn(ctx, fakeTx{state: f.state}); err != nil {
		f.state.deposits = map[int64]*FixedDeposit{}
		for id, dep := range snapshot {
			stored := dep
			f.state.deposits[id] = &stored
		}
		return err
	}
	return nil
}

type fakeTx struct{ state *fakeState }

func (f fakeTx) GetForUpdate(ctx context.Context, id int64) (FixedDeposit, error) {
	if f.state.failOn == id {
		return FixedDeposit{}, errors.Join(shared.ErrPersistence, errors.New("connection reset"))
	}
	dep, ok := f.state.deposits[id]
	if !ok {
		return FixedDeposit{}, shared.ErrNotFound
	}
	return *dep, nil
}

func (f fakeTx) Insert(ctx context.Context, dep FixedDeposit) (FixedDeposit, error) {
	return f.state.addDeposit(dep), nil
}

func (f fakeTx) Update(ctx context.Context, dep FixedDeposit) error {
	stored, ok := f.state.deposits[dep.ID]
	if !ok {
		return shared.ErrNotFound
	}
	*stored = dep
	return nil
}

func (f fakeTx) CreditMemberSavings(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	m, ok := f.state.members[memberID]
	if !ok {
		return shared.ErrNotFound
	}
	m.SavingsBalance = m.SavingsBalance.Add(amount)
	return nil
}

func (f fakeTx) DebitMemberDeposits(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	m, ok := f.state.members[memberID]
	if !ok {
		return shared.ErrNotFound
	}
	m.DepositsBalance = m.DepositsBalance.Sub(amount)
	if m.DepositsBalance.IsNegative() {
		m.DepositsBalance = decimal.Zero
	}
	return nil
}

func (f fakeTx) CreditMemberDeposits(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	m, ok := f.state.members[memberID]
	if !ok {
		return shared.ErrNotFound
	}
	m.DepositsBalance = m.DepositsBalance.Add(amount)
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
	return nil
}

func (f fakeJournal) GetEntryWithLines(ctx context.Context, entryID int64) (journals.JournalEntry, error) {
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
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) })
	return svc
}

func TestServiceOpenDeposit(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	dep, err := svc.Open(ctx, "nbo", OpenInput{
		MemberID: 1, Principal: dec("50000"), Rate: dec("10"), TermMonths: 12, AutoRollover: true,
	})
	require.NoError(t, err)
	require.Equal(t, DepositActive, dep.Status)
	require.True(t, dep.ExpectedInterest.Equal(dec("5000")))
	require.True(t, state.members[1].DepositsBalance.Equal(dec("50000")))
	require.True(t, state.balance(chart.Cash).Equal(dec("50000")))
	require.True(t, state.balance(chart.MemberDeposits).Equal(dec("50000")))

	_, err = svc.Open(ctx, "nbo", OpenInput{MemberID: 1, Principal: dec("0"), Rate: dec("10"), TermMonths: 12})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Open(ctx, "nbo", OpenInput{MemberID: 1, Principal: dec("100"), Rate: dec("10"), TermMonths: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
}

// Scenario: 50000 at 10% for 12 months with auto-rollover. On maturity the
// member's savings grow by the 5000 interest and a successor deposit of the
// same principal is created, chained to the matured one.
func TestProcessMaturedAutoRollover(t *testing.T) {
	state := newFakeState()
	var sms []string
	svc := newTestService(state, &sms)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	original := state.addDeposit(NewDeposit(1, dec("50000"), dec("10"), 12, start, true))
	state.members[1].DepositsBalance = dec("50000")

	result, err := svc.ProcessMatured(ctx, "nbo")
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.RolledOver)
	require.Empty(t, result.Errors)

	matured := *state.deposits[original.ID]
	require.Equal(t, DepositMatured, matured.Status)
	require.True(t, matured.ActualInterest.Equal(dec("5000")))

	require.True(t, state.members[1].SavingsBalance.Equal(dec("5000")))
	// Principal stays placed; the display balance is untouched on rollover.
	require.True(t, state.members[1].DepositsBalance.Equal(dec("50000")))

	var successor *FixedDeposit
	for _, dep := range state.deposits {
		if dep.ParentDepositID != nil && *dep.ParentDepositID == original.ID {
			successor = dep
		}
	}
	require.NotNil(t, successor)
	require.True(t, successor.Principal.Equal(dec("50000")))
	require.Equal(t, 1, successor.RolloverCount)
	require.Equal(t, DepositActive, successor.Status)
	require.Equal(t, time.Date(2027, 3, 1, 8, 0, 0, 0, time.UTC), successor.MaturityDate)

	require.True(t, state.balance(chart.InterestExpense).Equal(dec("5000")))
	require.True(t, state.balance(chart.MemberSavings).Equal(dec("5000")))
	require.NotEmpty(t, sms)
	require.NotEmpty(t, state.audits)

	// A second run finds nothing.
	again, err := svc.ProcessMatured(ctx, "nbo")
	require.NoError(t, err)
	require.Zero(t, again.Processed)
}

func TestProcessMaturedPayout(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	dep := state.addDeposit(NewDeposit(1, dec("20000"), dec("12"), 6, start, false))
	state.members[1].DepositsBalance = dec("20000")

	result, err := svc.ProcessMatured(ctx, "nbo")
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Zero(t, result.RolledOver)

	// 20000 at 12% for half a year accrues 1200.
	matured := *state.deposits[dep.ID]
	require.Equal(t, DepositMatured, matured.Status)
	require.True(t, matured.ActualInterest.Equal(dec("1200")))
	require.True(t, matured.ActualPayout.Equal(dec("21200")))

	require.True(t, state.members[1].SavingsBalance.Equal(dec("21200")))
	require.True(t, state.members[1].DepositsBalance.IsZero())
	require.True(t, state.balance(chart.MemberDeposits).Equal(dec("-20000")))
	require.True(t, state.balance(chart.MemberSavings).Equal(dec("21200")))
	require.True(t, state.balance(chart.InterestExpense).Equal(dec("1200")))
	require.Len(t, state.deposits, 1)
}

func TestProcessMaturedDepositsBalanceFlooredAtZero(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	state.addDeposit(NewDeposit(1, dec("20000"), dec("12"), 6, start, false))
	// Display balance drifted below the principal.
	state.members[1].DepositsBalance = dec("1500")

	_, err := svc.ProcessMatured(ctx, "nbo")
	require.NoError(t, err)
	require.True(t, state.members[1].DepositsBalance.IsZero())
}

func TestProcessMaturedPerItemIsolation(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	bad := state.addDeposit(NewDeposit(1, dec("10000"), dec("10"), 12, start, false))
	good := state.addDeposit(NewDeposit(1, dec("30000"), dec("10"), 12, start, true))
	state.failOn = bad.ID

	result, err := svc.ProcessMatured(ctx, "nbo")
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.RolledOver)
	require.Len(t, result.Errors, 1)

	// The failing deposit is untouched and will be retried next run.
	require.Equal(t, DepositActive, state.deposits[bad.ID].Status)
	require.Equal(t, DepositMatured, state.deposits[good.ID].Status)
}

func TestProcessMaturedSkipsNotYetDue(t *testing.T) {
	state := newFakeState()
	svc := newTestService(state, nil)
	ctx := context.Background()

	state.addDeposit(NewDeposit(1, dec("10000"), dec("10"), 12, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), false))

	result, err := svc.ProcessMatured(ctx, "nbo")
	require.NoError(t, err)
	require.Zero(t, result.Processed)
	require.True(t, state.members[1].SavingsBalance.IsZero())
}
