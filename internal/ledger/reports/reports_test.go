package reports

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/accounts"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBuildTrialBalance(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Opening: dec("1000"), Debit: dec("200"), Credit: dec("150")},
		{Code: "1001", Name: "Bank", Type: accounts.AccountTypeAsset, Opening: dec("500"), Debit: dec("100"), Credit: dec("50")},
		{Code: "2000", Name: "Member Savings", Type: accounts.AccountTypeLiability, Opening: dec("0"), Debit: dec("10"), Credit: dec("100")},
	}

	tb := BuildTrialBalance(balances)
	if len(tb.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(tb.Groups))
	}
	if !tb.TotalDebit.Equal(dec("310")) {
		t.Fatalf("unexpected total debit: %v", tb.TotalDebit)
	}
	if !tb.TotalCredit.Equal(dec("300")) {
		t.Fatalf("unexpected total credit: %v", tb.TotalCredit)
	}
	if tb.IsBalanced {
		t.Fatalf("expected unbalanced flag for lopsided window")
	}
}

func TestBuildTrialBalanceBalancedFlag(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Debit: dec("500.25"), Credit: dec("0")},
		{Code: "2000", Name: "Member Savings", Type: accounts.AccountTypeLiability, Debit: dec("0"), Credit: dec("500.25")},
	}
	tb := BuildTrialBalance(balances)
	if !tb.IsBalanced {
		t.Fatalf("expected balanced trial balance")
	}
	if !tb.TotalClosing.IsZero() {
		t.Fatalf("closing total should net to zero, got %v", tb.TotalClosing)
	}
}

func TestBuildIncomeStatement(t *testing.T) {
	balances := []AccountBalance{
		{Code: "4100", Name: "Interest on Loans", Type: accounts.AccountTypeIncome, Debit: dec("0"), Credit: dec("1200")},
		{Code: "4200", Name: "Penalty Income", Type: accounts.AccountTypeIncome, Debit: dec("0"), Credit: dec("80")},
		{Code: "5000", Name: "Operating Expenses", Type: accounts.AccountTypeExpense, Debit: dec("300"), Credit: dec("0")},
		{Code: "5100", Name: "Penalty Waivers", Type: accounts.AccountTypeExpense, Debit: dec("45"), Credit: dec("0")},
	}

	is := BuildIncomeStatement(balances)
	if !is.Income.Total.Equal(dec("1280")) {
		t.Fatalf("expected income total 1280 got %v", is.Income.Total)
	}
	if !is.Expense.Total.Equal(dec("345")) {
		t.Fatalf("expected expense total 345 got %v", is.Expense.Total)
	}
	if !is.NetSurplus.Equal(dec("935")) {
		t.Fatalf("expected net surplus 935 got %v", is.NetSurplus)
	}
}

func TestBuildBalanceSheet(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Debit: dec("100"), Credit: dec("20")},
		{Code: "2000", Name: "Member Savings", Type: accounts.AccountTypeLiability, Debit: dec("10"), Credit: dec("40")},
		{Code: "3000", Name: "Share Capital", Type: accounts.AccountTypeEquity, Opening: dec("-50"), Debit: dec("0"), Credit: dec("0")},
	}

	bs := BuildBalanceSheet(balances)
	if !bs.Assets.Total.Equal(dec("80")) {
		t.Fatalf("expected assets 80 got %v", bs.Assets.Total)
	}
	if !bs.Liabilities.Total.Equal(dec("30")) {
		t.Fatalf("expected liabilities 30 got %v", bs.Liabilities.Total)
	}
	if !bs.Equity.Total.Equal(dec("50")) {
		t.Fatalf("expected equity 50 got %v", bs.Equity.Total)
	}
	if !bs.TotalLiabilitiesAndEquity.Equal(dec("80")) {
		t.Fatalf("expected total L+E 80 got %v", bs.TotalLiabilitiesAndEquity)
	}
}
