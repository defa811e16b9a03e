// Package chart names the well-known chart of accounts codes every tenant
// database is seeded with. The financial engines resolve these codes to
// account ids at posting time.
package chart

const (
	// Cash is the teller/till asset account money moves through.
	Cash = "1000"
	// LoansReceivable carries outstanding loan principal.
	LoansReceivable = "1200"
	// InterestReceivable carries accrued, unpaid loan interest.
	InterestReceivable = "1210"
	// PenaltyReceivable carries levied, unpaid penalties.
	PenaltyReceivable = "1220"
	// MemberSavings is the liability owed to members on their savings.
	MemberSavings = "2000"
	// MemberDeposits is the liability owed on fixed deposits.
	MemberDeposits = "2100"
	// InterestIncome collects interest earned on loans.
	InterestIncome = "4100"
	// PenaltyIncome collects penalty charges collected.
	PenaltyIncome = "4200"
	// InterestExpense collects interest paid out on fixed deposits.
	InterestExpense = "5200"
	// PenaltyWaiverExpense absorbs penalties written off in restructures.
	PenaltyWaiverExpense = "5100"
)
