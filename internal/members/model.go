package members

import (
	"time"

	"github.com/shopspring/decimal"
)

// Member is a SACCO member. SavingsBalance and DepositsBalance are display
// ledgers maintained by the loan and deposit engines; the double-entry
// ledger remains the source of truth for the organization's books.
type Member struct {
	ID              int64
	MemberNumber    string
	Name            string
	Phone           string
	SavingsBalance  decimal.Decimal
	DepositsBalance decimal.Decimal
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
