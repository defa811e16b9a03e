package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// JournalEntry captures one balanced double-entry transaction. Posted
// entries are immutable; a reversal is a new mirror entry linked through
// ReversalOf/ReversedBy.
type JournalEntry struct {
	ID          int64
	Number      int64
	Date        time.Time
	Description string
	SourceType  string
	SourceID    uuid.UUID
	Status      EntryStatus
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	IsReversed  bool
	ReversalOf  *int64
	ReversedBy  *int64
	PostedBy    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine is one debit or credit leg of an entry. Exactly one of
// Debit/Credit is nonzero, enforced at validation.
type JournalLine struct {
	ID        int64
	JournalID int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	CreatedAt time.Time
}
