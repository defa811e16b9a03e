package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/accounts"
)

// IncomeStatementAccount represents an income or expense account summary.
type IncomeStatementAccount struct {
	Code   string
	Name   string
	Amount decimal.Decimal
}

// IncomeStatementSection groups accounts by nature.
type IncomeStatementSection struct {
	Label    string
	Accounts []IncomeStatementAccount
	Total    decimal.Decimal
}

// IncomeStatement contains the structured output for the report. For a
// SACCO the net line is surplus rather than profit, but the arithmetic is
// identical.
type IncomeStatement struct {
	Income     IncomeStatementSection
	Expense    IncomeStatementSection
	NetSurplus decimal.Decimal
}

// BuildIncomeStatement aggregates accounts into income and expense sections.
func BuildIncomeStatement(balances []AccountBalance) IncomeStatement {
	income := IncomeStatementSection{Label: "Income"}
	expense := IncomeStatementSection{Label: "Expense"}

	for _, acc := range balances {
		amount := acc.Debit.Sub(acc.Credit)
		row := IncomeStatementAccount{Code: acc.Code, Name: acc.Name, Amount: amount}
		switch acc.Type {
		case accounts.AccountTypeIncome:
			row.Amount = amount.Neg()
			income.Accounts = append(income.Accounts, row)
			income.Total = income.Total.Add(row.Amount)
		case accounts.AccountTypeExpense:
			expense.Accounts = append(expense.Accounts, row)
			expense.Total = expense.Total.Add(row.Amount)
		}
	}

	sort.Slice(income.Accounts, func(i, j int) bool { return income.Accounts[i].Code < income.Accounts[j].Code })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Code < expense.Accounts[j].Code })

	return IncomeStatement{
		Income:     income,
		Expense:    expense,
		NetSurplus: income.Total.Sub(expense.Total),
	}
}
