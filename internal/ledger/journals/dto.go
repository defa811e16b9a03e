package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date        time.Time
	Description string
	SourceType  string
	SourceID    uuid.UUID
	PostedBy    int64
	Lines       []PostingLineInput
}

// Validate enforces the balanced-entry invariant before any persistence.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return shared.Validationf("journal entry needs at least two lines")
	}
	if in.SourceType == "" {
		return shared.Validationf("journal entry source type required")
	}
	if in.SourceID == uuid.Nil {
		return shared.Validationf("journal entry source id required")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Validationf("line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Validationf("line %d has a negative amount", idx)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return shared.Validationf("line %d must carry exactly one of debit or credit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return shared.Validationf("entry is unbalanced: debits %s != credits %s", debit, credit)
	}
	return nil
}

// Totals returns the debit and credit totals for a validated input.
func (in PostingInput) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}
