package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/accounts"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

type Service struct {
	repo  Repository
	audit shared.AuditSink
	now   func() time.Time
}

func NewService(repo Repository, audit shared.AuditSink) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.GetWithLines(ctx, entryID)
}

// Post validates and persists a balanced journal entry, moving every
// referenced account's running balance by its normal-balance sign. Entry,
// lines and balances commit atomically.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := PostWithinTx(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.PostedBy, "journal.post", entry.ID, map[string]any{
		"number":      entry.Number,
		"source_type": input.SourceType,
		"source_id":   input.SourceID.String(),
	})
	return entry, nil
}

// PostWithinTx posts an entry inside an already-open transaction. The loan,
// restructure and deposit engines call this so that their balance mutations
// and the matching ledger posting share one commit.
func PostWithinTx(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	inserted, err := tx.InsertEntry(ctx, input, nil)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	if err := applyLines(ctx, tx, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	inserted.Lines = toJournalLines(inserted.ID, input.Lines, time.Now())
	return inserted, nil
}

// ReverseInput wraps parameters for a reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Memo    string
}

// Reverse creates a mirror entry with debits and credits swapped, linked to
// the original through reversal_of/reversed_by. The original entry's lines
// are never mutated.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, shared.Validationf("entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != EntryStatusPosted || original.IsReversed {
			return shared.StateConflictf("entry %d is not reversible (status %s)", original.ID, original.Status)
		}
		posting := PostingInput{
			Date:        original.Date,
			Description: defaultReversalMemo(input.Memo, original.Number),
			SourceType:  original.SourceType + ":REVERSAL",
			SourceID:    uuid.New(),
			PostedBy:    input.ActorID,
			Lines:       reverseLines(original.Lines),
		}
		originalID := original.ID
		inserted, err := tx.InsertEntry(ctx, posting, &originalID)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, posting.Lines); err != nil {
			return err
		}
		if err := applyLines(ctx, tx, posting.Lines); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, posting.Lines, s.now())
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// applyLines moves each referenced account's running balance. A debit
// increases an asset or expense account and decreases the others; credits
// mirror that.
func applyLines(ctx context.Context, tx TxRepository, lines []PostingLineInput) error {
	for _, line := range lines {
		acc, err := tx.GetAccountForUpdate(ctx, line.AccountID)
		if err != nil {
			return fmt.Errorf("journals: account %d: %w", line.AccountID, err)
		}
		if err := accounts.EnsurePostable(acc); err != nil {
			return err
		}
		delta := acc.SignedDelta(line.Debit, line.Credit)
		if err := tx.AdjustAccountBalance(ctx, acc.ID, delta); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  fmt.Sprintf("%d", entryID),
		NewValues: meta,
		At:        s.now(),
	})
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID: entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			CreatedAt: ts,
		})
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
