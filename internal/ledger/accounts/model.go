package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the type is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// NormalSide enumerates the side on which an account normally carries its
// balance.
type NormalSide string

const (
	NormalDebit  NormalSide = "DEBIT"
	NormalCredit NormalSide = "CREDIT"
)

// NormalSide is determined by the account type: assets and expenses carry
// debit balances, everything else credit balances.
func (t AccountType) NormalSide() NormalSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// Account models a chart of accounts node. Header accounts (IsHeader)
// aggregate their children and never receive direct postings; the running
// Balance of a leaf equals the signed sum of all its journal lines.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsHeader  bool
	Balance   decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignedDelta converts a posted debit/credit pair into the amount the
// account's running balance moves by, relative to its normal side.
func (a Account) SignedDelta(debit, credit decimal.Decimal) decimal.Decimal {
	if a.Type.NormalSide() == NormalDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
