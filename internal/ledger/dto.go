package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/accounts"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/journals"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/reports"
)

type createAccountRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	ParentID *int64 `json:"parent_id,omitempty"`
	IsHeader bool   `json:"is_header"`
}

type accountResponse struct {
	ID       int64           `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	ParentID *int64          `json:"parent_id,omitempty"`
	IsHeader bool            `json:"is_header"`
	Balance  decimal.Decimal `json:"balance"`
	IsActive bool            `json:"is_active"`
}

func toAccountResponse(acc accounts.Account) accountResponse {
	return accountResponse{
		ID:       acc.ID,
		Code:     acc.Code,
		Name:     acc.Name,
		Type:     string(acc.Type),
		ParentID: acc.ParentID,
		IsHeader: acc.IsHeader,
		Balance:  acc.Balance,
		IsActive: acc.IsActive,
	}
}

type postLineRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type postEntryRequest struct {
	Date        string            `json:"date" validate:"required"`
	Description string            `json:"description" validate:"required"`
	SourceID    string            `json:"source_id,omitempty" validate:"omitempty,uuid"`
	Lines       []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	Memo string `json:"memo,omitempty"`
}

type lineResponse struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type entryResponse struct {
	ID          int64           `json:"id"`
	Number      int64           `json:"number"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	SourceType  string          `json:"source_type"`
	SourceID    string          `json:"source_id"`
	Status      string          `json:"status"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	IsReversed  bool            `json:"is_reversed"`
	ReversalOf  *int64          `json:"reversal_of,omitempty"`
	ReversedBy  *int64          `json:"reversed_by,omitempty"`
	PostedBy    int64           `json:"posted_by,omitempty"`
	Lines       []lineResponse  `json:"lines,omitempty"`
}

func toEntryResponse(e journals.JournalEntry) entryResponse {
	resp := entryResponse{
		ID:          e.ID,
		Number:      e.Number,
		Date:        e.Date.Format("2006-01-02"),
		Description: e.Description,
		SourceType:  e.SourceType,
		SourceID:    e.SourceID.String(),
		Status:      string(e.Status),
		TotalDebit:  e.TotalDebit,
		TotalCredit: e.TotalCredit,
		IsReversed:  e.IsReversed,
		ReversalOf:  e.ReversalOf,
		ReversedBy:  e.ReversedBy,
		PostedBy:    e.PostedBy,
	}
	for _, line := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:        line.ID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return resp
}

type trialBalanceAccountResponse struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Opening decimal.Decimal `json:"opening"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Closing decimal.Decimal `json:"closing"`
}

type trialBalanceGroupResponse struct {
	Key      string                        `json:"key"`
	Accounts []trialBalanceAccountResponse `json:"accounts"`
	Opening  decimal.Decimal               `json:"opening"`
	Debit    decimal.Decimal               `json:"debit"`
	Credit   decimal.Decimal               `json:"credit"`
	Closing  decimal.Decimal               `json:"closing"`
}

type trialBalanceResponse struct {
	From         string                      `json:"from"`
	To           string                      `json:"to"`
	Groups       []trialBalanceGroupResponse `json:"groups"`
	TotalOpening decimal.Decimal             `json:"total_opening"`
	TotalDebit   decimal.Decimal             `json:"total_debit"`
	TotalCredit  decimal.Decimal             `json:"total_credit"`
	TotalClosing decimal.Decimal             `json:"total_closing"`
	IsBalanced   bool                        `json:"is_balanced"`
}

func toTrialBalanceResponse(tb reports.TrialBalance, from, to time.Time) trialBalanceResponse {
	resp := trialBalanceResponse{
		From:         from.Format("2006-01-02"),
		To:           to.Format("2006-01-02"),
		TotalOpening: tb.TotalOpening,
		TotalDebit:   tb.TotalDebit,
		TotalCredit:  tb.TotalCredit,
		TotalClosing: tb.TotalClosing,
		IsBalanced:   tb.IsBalanced,
	}
	for _, grp := range tb.Groups {
		out := trialBalanceGroupResponse{
			Key:     grp.Key,
			Opening: grp.Opening,
			Debit:   grp.Debit,
			Credit:  grp.Credit,
			Closing: grp.Closing,
		}
		for _, acc := range grp.Accounts {
			out.Accounts = append(out.Accounts, trialBalanceAccountResponse{
				Code:    acc.Code,
				Name:    acc.Name,
				Opening: acc.Opening,
				Debit:   acc.Debit,
				Credit:  acc.Credit,
				Closing: acc.Closing,
			})
		}
		resp.Groups = append(resp.Groups, out)
	}
	return resp
}

type reportLineResponse struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type reportSectionResponse struct {
	Label    string               `json:"label"`
	Accounts []reportLineResponse `json:"accounts"`
	Total    decimal.Decimal      `json:"total"`
}

type incomeStatementResponse struct {
	From       string                `json:"from"`
	To         string                `json:"to"`
	Income     reportSectionResponse `json:"income"`
	Expense    reportSectionResponse `json:"expense"`
	NetSurplus decimal.Decimal       `json:"net_surplus"`
}

func toIncomeStatementResponse(is reports.IncomeStatement, from, to time.Time) incomeStatementResponse {
	return incomeStatementResponse{
		From:       from.Format("2006-01-02"),
		To:         to.Format("2006-01-02"),
		Income:     toIncomeSection(is.Income),
		Expense:    toIncomeSection(is.Expense),
		NetSurplus: is.NetSurplus,
	}
}

func toIncomeSection(sec reports.IncomeStatementSection) reportSectionResponse {
	out := reportSectionResponse{Label: sec.Label, Total: sec.Total}
	for _, acc := range sec.Accounts {
		out.Accounts = append(out.Accounts, reportLineResponse{Code: acc.Code, Name: acc.Name, Amount: acc.Amount})
	}
	return out
}

type balanceSheetResponse struct {
	AsOf                      string                `json:"as_of"`
	Assets                    reportSectionResponse `json:"assets"`
	Liabilities               reportSectionResponse `json:"liabilities"`
	Equity                    reportSectionResponse `json:"equity"`
	TotalLiabilitiesAndEquity decimal.Decimal       `json:"total_liabilities_and_equity"`
}

func toBalanceSheetResponse(bs reports.BalanceSheet, asOf time.Time) balanceSheetResponse {
	return balanceSheetResponse{
		AsOf:                      asOf.Format("2006-01-02"),
		Assets:                    toBalanceSection(bs.Assets),
		Liabilities:               toBalanceSection(bs.Liabilities),
		Equity:                    toBalanceSection(bs.Equity),
		TotalLiabilitiesAndEquity: bs.TotalLiabilitiesAndEquity,
	}
}

func toBalanceSection(sec reports.BalanceSheetSection) reportSectionResponse {
	out := reportSectionResponse{Label: sec.Label, Total: sec.Total}
	for _, acc := range sec.Accounts {
		out.Accounts = append(out.Accounts, reportLineResponse{Code: acc.Code, Name: acc.Name, Amount: acc.Balance})
	}
	return out
}
