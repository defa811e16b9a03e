package deposits

import (
	"context"
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

// Stores resolves the per-tenant persistence for deposit operations.
type Stores interface {
	Deposits(ctx context.Context, orgCode string) (Repository, error)
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

// OpenInput describes a new fixed deposit placement.
type OpenInput struct {
	MemberID     int64
	Principal    decimal.Decimal
	Rate         decimal.Decimal
	TermMonths   int
	AutoRollover bool
}

// Open places a new fixed deposit: the member's deposits balance grows and
// the cash received is posted against the deposit liability.
func (s *Service) Open(ctx context.Context, orgCode string, input OpenInput) (FixedDeposit, error) {
	if input.MemberID == 0 {
		return FixedDeposit{}, shared.Validationf("member id required")
	}
	if !input.Principal.IsPositive() {
		return FixedDeposit{}, shared.Validationf("deposit principal must be positive")
	}
	if input.Rate.IsNegative() {
		return FixedDeposit{}, shared.Validationf("deposit rate cannot be negative")
	}
	if input.TermMonths <= 0 {
		return FixedDeposit{}, shared.Validationf("deposit term must be positive")
	}
	repo, err := s.stores.Deposits(ctx, orgCode)
	if err != nil {
		return FixedDeposit{}, err
	}
	today := s.now()
	var dep FixedDeposit
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.Insert(ctx, NewDeposit(input.MemberID, input.Principal, input.Rate, input.TermMonths, today, input.AutoRollover))
		if err != nil {
			return err
		}
		if err := tx.CreditMemberDeposits(ctx, input.MemberID, input.Principal); err != nil {
			return err
		}
		cash, err := tx.AccountIDByCode(ctx, chart.Cash)
		if err != nil {
			return err
		}
		liability, err := tx.AccountIDByCode(ctx, chart.MemberDeposits)
		if err != nil {
			return err
		}
		_, err = journals.PostWithinTx(ctx, tx.Journal(), journals.PostingInput{
			Date:        today,
			Description: fmt.Sprintf("Fixed deposit %d placement", inserted.ID),
			SourceType:  "deposit_placement",
			SourceID:    uuid.New(),
			Lines: []journals.PostingLineInput{
				{AccountID: cash, Debit: input.Principal},
				{AccountID: liability, Credit: input.Principal},
			},
		})
		if err != nil {
			return err
		}
		dep = inserted
		return nil
	})
	if err != nil {
		return FixedDeposit{}, err
	}
	s.audit(ctx, orgCode, "deposit.open", dep.ID, nil, map[string]any{
		"principal": dep.Principal.String(),
		"maturity":  dep.MaturityDate.Format(time.DateOnly),
	})
	return dep, nil
}

// Get returns one deposit.
func (s *Service) Get(ctx context.Context, orgCode string, id int64) (FixedDeposit, error) {
	repo, err := s.stores.Deposits(ctx, orgCode)
	if err != nil {
		return FixedDeposit{}, err
	}
	return repo.Get(ctx, id)
}

// List returns a page of deposits, optionally filtered to one member.
func (s *Service) List(ctx context.Context, orgCode string, memberID int64, limit, offset int) ([]FixedDeposit, int, error) {
	repo, err := s.stores.Deposits(ctx, orgCode)
	if err != nil {
		return nil, 0, err
	}
	return repo.List(ctx, memberID, limit, offset)
}

// MaturityResult summarizes one maturity run for an organization.
type MaturityResult struct {
	Processed  int      `json:"processed"`
	RolledOver int      `json:"rolled_over"`
	Errors     []string `json:"errors,omitempty"`
}

// ProcessMatured settles every deposit whose maturity date has passed.
// Each deposit is processed in its own transaction so one failure never
// blocks the rest of the batch; failures are collected into the result.
func (s *Service) ProcessMatured(ctx context.Context, orgCode string) (MaturityResult, error) {
	repo, err := s.stores.Deposits(ctx, orgCode)
	if err != nil {
		return MaturityResult{}, err
	}
	today := s.now()
	ids, err := repo.MaturedIDs(ctx, today)
	if err != nil {
		return MaturityResult{}, err
	}

	var result MaturityResult
	for _, id := range ids {
		rolled, err := s.settleOne(ctx, orgCode, repo, id, today)
		if err != nil {
			s.logger.Error("deposit maturity failed",
				slog.String("org", orgCode), slog.Int64("deposit", id), slog.Any("error", err))
			result.Errors = append(result.Errors, fmt.Sprintf("deposit %d: %v", id, err))
			continue
		}
		result.Processed++
		if rolled {
			result.RolledOver++
		}
	}
	return result, nil
}

func (s *Service) settleOne(ctx context.Context, orgCode string, repo Repository, id int64, today time.Time) (rolled bool, err error) {
	var dep, successor FixedDeposit
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// Another run may have settled it between the work-list read and
		// this lock.
		if !current.Matured(today) {
			return nil
		}
		interest := current.ExpectedInterest

		current.ActualInterest = interest
		current.Status = DepositMatured
		if current.AutoRollover {
			current.ActualPayout = interest
			if err := tx.Update(ctx, current); err != nil {
				return err
			}
			if err := tx.CreditMemberSavings(ctx, current.MemberID, interest); err != nil {
				return err
			}
			next, err := tx.Insert(ctx, current.Rollover(today))
			if err != nil {
				return err
			}
			if err := s.postInterest(ctx, tx, current, interest, today); err != nil {
				return err
			}
			successor = next
		} else {
			payout := current.Principal.Add(interest)
			current.ActualPayout = payout
			if err := tx.Update(ctx, current); err != nil {
				return err
			}
			if err := tx.CreditMemberSavings(ctx, current.MemberID, payout); err != nil {
				return err
			}
			if err := tx.DebitMemberDeposits(ctx, current.MemberID, current.Principal); err != nil {
				return err
			}
			if err := s.postPayout(ctx, tx, current, interest, today); err != nil {
				return err
			}
		}
		dep = current
		return nil
	})
	if err != nil || dep.ID == 0 {
		return false, err
	}

	newValues := map[string]any{
		"interest": dep.ActualInterest.String(),
		"payout":   dep.ActualPayout.String(),
	}
	if successor.ID != 0 {
		newValues["rollover_deposit_id"] = successor.ID
	}
	s.audit(ctx, orgCode, "deposit.mature", dep.ID,
		map[string]any{"status": string(DepositActive), "principal": dep.Principal.String()}, newValues)
	s.notifyMember(ctx, orgCode, dep.MemberID, maturityMessage(dep, successor))
	return successor.ID != 0, nil
}

// postInterest records the rollover outcome: interest expense against the
// member's savings liability. Principal stays inside the deposit liability
// because the successor deposit replaces the matured one.
func (s *Service) postInterest(ctx context.Context, tx TxRepository, dep FixedDeposit, interest decimal.Decimal, at time.Time) error {
	if !interest.IsPositive() {
		return nil
	}
	expense, err := tx.AccountIDByCode(ctx, chart.InterestExpense)
	if err != nil {
		return err
	}
	savings, err := tx.AccountIDByCode(ctx, chart.MemberSavings)
	if err != nil {
		return err
	}
	_, err = journals.PostWithinTx(ctx, tx.Journal(), journals.PostingInput{
		Date:        at,
		Description: fmt.Sprintf("Fixed deposit %d rollover interest", dep.ID),
		SourceType:  "deposit_maturity",
		SourceID:    uuid.New(),
		Lines: []journals.PostingLineInput{
			{AccountID: expense, Debit: interest},
			{AccountID: savings, Credit: interest},
		},
	})
	return err
}

// postPayout releases the principal from the deposit liability and expenses
// the interest, both landing in the member's savings liability.
func (s *Service) postPayout(ctx context.Context, tx TxRepository, dep FixedDeposit, interest decimal.Decimal, at time.Time) error {
	liability, err := tx.AccountIDByCode(ctx, chart.MemberDeposits)
	if err != nil {
		return err
	}
	savings, err := tx.AccountIDByCode(ctx, chart.MemberSavings)
	if err != nil {
		return err
	}
	lines := []journals.PostingLineInput{
		{AccountID: liability, Debit: dep.Principal},
		{AccountID: savings, Credit: dep.Principal.Add(interest)},
	}
	if interest.IsPositive() {
		expense, err := tx.AccountIDByCode(ctx, chart.InterestExpense)
		if err != nil {
			return err
		}
		lines = append(lines, journals.PostingLineInput{AccountID: expense, Debit: interest})
	}
	_, err = journals.PostWithinTx(ctx, tx.Journal(), journals.PostingInput{
		Date:        at,
		Description: fmt.Sprintf("Fixed deposit %d maturity payout", dep.ID),
		SourceType:  "deposit_maturity",
		SourceID:    uuid.New(),
		Lines:       lines,
	})
	return err
}

func maturityMessage(dep, successor FixedDeposit) string {
	if successor.ID != 0 {
		return fmt.Sprintf("Your fixed deposit matured. Interest of %s credited to savings; %s rolled over until %s.",
			notify.FormatAmount("KES", dep.ActualInterest),
			notify.FormatAmount("KES", dep.Principal),
			successor.MaturityDate.Format("02 Jan 2006"))
	}
	return fmt.Sprintf("Your fixed deposit matured. %s credited to your savings.",
		notify.FormatAmount("KES", dep.ActualPayout))
}

func (s *Service) audit(ctx context.Context, orgCode string, action string, depositID int64, oldValues, newValues map[string]any) {
	sink, err := s.stores.Audit(ctx, orgCode)
	if err != nil || sink == nil {
		return
	}
	_ = sink.Record(ctx, shared.AuditLog{
		ActorID:   shared.ActorFromContext(ctx),
		Action:    action,
		Entity:    "fixed_deposit",
		EntityID:  fmt.Sprintf("%d", depositID),
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
		return
	}
	notify.BestEffort(ctx, s.notifier, s.logger, member.Phone, body)
}
