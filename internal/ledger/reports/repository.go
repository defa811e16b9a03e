package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/accounts"
)

// Repository aggregates posted journal activity per leaf account.
type Repository interface {
	AccountActivity(ctx context.Context, from, to time.Time) ([]AccountBalance, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// AccountActivity returns, for every postable account, the opening balance
// before the window and the debit/credit movement inside it. Only POSTED
// and REVERSED entries contribute; reversal mirror entries are themselves
// posted, so a reversed pair nets to zero.
func (r *repository) AccountActivity(ctx context.Context, from, to time.Time) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `
SELECT a.code, a.name, a.type,
       COALESCE(SUM(CASE WHEN je.date < $1 THEN jl.debit - jl.credit END), 0) AS opening,
       COALESCE(SUM(CASE WHEN je.date >= $1 AND je.date <= $2 THEN jl.debit END), 0) AS debit,
       COALESCE(SUM(CASE WHEN je.date >= $1 AND je.date <= $2 THEN jl.credit END), 0) AS credit
FROM accounts a
LEFT JOIN journal_lines jl ON jl.account_id = a.id
LEFT JOIN journal_entries je ON je.id = jl.je_id AND je.status IN ('POSTED','REVERSED')
WHERE NOT a.is_header
GROUP BY a.code, a.name, a.type
ORDER BY a.code`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		var accType string
		if err := rows.Scan(&b.Code, &b.Name, &accType, &b.Opening, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		b.Type = accounts.AccountType(accType)
		out = append(out, b)
	}
	return out, rows.Err()
}
