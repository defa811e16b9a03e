package deposits

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/journals"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// Repository encapsulates fixed deposit persistence for one tenant store.
type Repository interface {
	Get(ctx context.Context, id int64) (FixedDeposit, error)
	List(ctx context.Context, memberID int64, limit, offset int) ([]FixedDeposit, int, error)
	// MaturedIDs returns the ids of active deposits due on or before asOf.
	// The maturity processor locks and re-checks each one inside its own
	// transaction, so this read is only a work list.
	MaturedIDs(ctx context.Context, asOf time.Time) ([]int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations available inside one deposit
// transaction, including ledger posting on the same connection.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (FixedDeposit, error)
	Insert(ctx context.Context, dep FixedDeposit) (FixedDeposit, error)
	Update(ctx context.Context, dep FixedDeposit) error
	CreditMemberSavings(ctx context.Context, memberID int64, amount decimal.Decimal) error
	// DebitMemberDeposits lowers the member's deposits display balance,
	// floored at zero.
	DebitMemberDeposits(ctx context.Context, memberID int64, amount decimal.Decimal) error
	CreditMemberDeposits(ctx context.Context, memberID int64, amount decimal.Decimal) error
	AccountIDByCode(ctx context.Context, code string) (int64, error)
	Journal() journals.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const depositColumns = `id, member_id, principal, rate, term_months, start_date, maturity_date,
expected_interest, maturity_amount, actual_interest, actual_payout, auto_rollover, rollover_count,
parent_deposit_id, status, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (FixedDeposit, error) {
	dep, err := scanDeposit(r.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM member_fixed_deposits WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FixedDeposit{}, shared.ErrNotFound
		}
		return FixedDeposit{}, err
	}
	return dep, nil
}

func (r *repository) List(ctx context.Context, memberID int64, limit, offset int) ([]FixedDeposit, int, error) {
	if limit <= 0 {
		limit = 20
	}
	where, args := ``, []any{}
	if memberID > 0 {
		where = ` WHERE member_id=$1`
		args = append(args, memberID)
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM member_fixed_deposits`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	query := `SELECT ` + depositColumns + ` FROM member_fixed_deposits` + where
	if memberID > 0 {
		query += ` ORDER BY id DESC LIMIT $2 OFFSET $3`
	} else {
		query += ` ORDER BY id DESC LIMIT $1 OFFSET $2`
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []FixedDeposit
	for rows.Next() {
		dep, err := scanDeposit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, dep)
	}
	return out, total, rows.Err()
}

func (r *repository) MaturedIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM member_fixed_deposits WHERE status='ACTIVE' AND maturity_date <= $1 ORDER BY maturity_date`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return errors.Join(shared.ErrPersistence, err)
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Join(shared.ErrPersistence, err)
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (FixedDeposit, error) {
	dep, err := scanDeposit(r.tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM member_fixed_deposits WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FixedDeposit{}, shared.ErrNotFound
		}
		return FixedDeposit{}, err
	}
	return dep, nil
}

func (r *txRepository) Insert(ctx context.Context, dep FixedDeposit) (FixedDeposit, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO member_fixed_deposits (member_id, principal, rate, term_months, start_date, maturity_date,
expected_interest, maturity_amount, actual_interest, actual_payout, auto_rollover, rollover_count, parent_deposit_id, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,0,$9,$10,$11,$12) RETURNING id, created_at, updated_at`,
		dep.MemberID, dep.Principal, dep.Rate, dep.TermMonths, dep.StartDate, dep.MaturityDate,
		dep.ExpectedInterest, dep.MaturityAmount, dep.AutoRollover, dep.RolloverCount, dep.ParentDepositID, dep.Status)
	if err := row.Scan(&dep.ID, &dep.CreatedAt, &dep.UpdatedAt); err != nil {
		return FixedDeposit{}, err
	}
	return dep, nil
}

func (r *txRepository) Update(ctx context.Context, dep FixedDeposit) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE member_fixed_deposits SET actual_interest=$2, actual_payout=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		dep.ID, dep.ActualInterest, dep.ActualPayout, dep.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) CreditMemberSavings(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE members SET savings_balance = savings_balance + $2, updated_at=NOW() WHERE id=$1`, memberID, amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DebitMemberDeposits(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE members SET deposits_balance = GREATEST(deposits_balance - $2, 0), updated_at=NOW() WHERE id=$1`, memberID, amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) CreditMemberDeposits(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE members SET deposits_balance = deposits_balance + $2, updated_at=NOW() WHERE id=$1`, memberID, amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) AccountIDByCode(ctx context.Context, code string) (int64, error) {
	var id int64
	if err := r.tx.QueryRow(ctx, `SELECT id FROM accounts WHERE code=$1`, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) Journal() journals.TxRepository {
	return journals.NewTxRepository(r.tx)
}

func scanDeposit(row pgx.Row) (FixedDeposit, error) {
	var d FixedDeposit
	err := row.Scan(&d.ID, &d.MemberID, &d.Principal, &d.Rate, &d.TermMonths, &d.StartDate, &d.MaturityDate,
		&d.ExpectedInterest, &d.MaturityAmount, &d.ActualInterest, &d.ActualPayout, &d.AutoRollover, &d.RolloverCount,
		&d.ParentDepositID, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}
