package loans

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger/journals"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// Repository encapsulates loan persistence for one tenant store.
type Repository interface {
	GetLoan(ctx context.Context, id int64) (LoanApplication, error)
	ListLoans(ctx context.Context, limit, offset int) ([]LoanApplication, int, error)
	ListInstalments(ctx context.Context, loanID int64) ([]Instalment, error)
	ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error)
	// MarkOverdueInstalments flags unpaid instalments past their due date.
	MarkOverdueInstalments(ctx context.Context, asOf time.Time) (int64, error)
	// AssessPenalties charges a one-time late fee on overdue instalments that
	// carry none yet and lifts each loan's outstanding balance by the fees
	// assessed on it. Returns the instalment count and the total charged.
	AssessPenalties(ctx context.Context, asOf time.Time, ratePercent decimal.Decimal) (int64, decimal.Decimal, error)
	// OpenDefaultsForDelinquents opens a default record for loans carrying at
	// least minOverdue overdue instalments and no open default yet.
	OpenDefaultsForDelinquents(ctx context.Context, asOf time.Time, minOverdue int) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations available inside one loan transaction.
// Journal gives access to ledger posting within the same transaction so a
// crash can never separate a balance update from its posting.
type TxRepository interface {
	InsertLoan(ctx context.Context, loan LoanApplication) (LoanApplication, error)
	GetLoanForUpdate(ctx context.Context, id int64) (LoanApplication, error)
	ListInstalmentsForUpdate(ctx context.Context, loanID int64) ([]Instalment, error)
	FindRepayment(ctx context.Context, loanID int64, reference string) (Repayment, bool, error)
	InsertRepayment(ctx context.Context, rep Repayment) (Repayment, error)
	UpdateInstalment(ctx context.Context, inst Instalment) error
	UpdateLoan(ctx context.Context, loan LoanApplication) error
	DeleteUntouchedInstalments(ctx context.Context, loanID int64) error
	InsertInstalments(ctx context.Context, insts []Instalment) error
	InsertRestructure(ctx context.Context, rec Restructure) (Restructure, error)
	ResolveOpenDefaults(ctx context.Context, loanID int64, at time.Time) error
	CreditMemberSavings(ctx context.Context, memberID int64, amount decimal.Decimal) error
	AccountIDByCode(ctx context.Context, code string) (int64, error)
	Journal() journals.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const loanColumns = `id, member_id, principal, term_months, interest_rate, interest_type, frequency,
monthly_repayment, total_interest, total_repayment, amount_repaid, outstanding_balance, status,
interest_deducted_upfront, is_restructured, next_payment_date, last_payment_date, disbursed_at, closed_at,
created_at, updated_at`

const instalmentColumns = `id, loan_id, sequence, due_date, expected_principal, expected_interest, expected_penalty,
paid_principal, paid_interest, paid_penalty, status, created_at, updated_at`

const repaymentColumns = `id, loan_id, reference, amount, principal_applied, interest_applied, penalty_applied,
overpayment, method, paid_at, created_at`

func (r *repository) GetLoan(ctx context.Context, id int64) (LoanApplication, error) {
	loan, err := scanLoan(r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loan_applications WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoanApplication{}, shared.ErrNotFound
		}
		return LoanApplication{}, err
	}
	return loan, nil
}

func (r *repository) ListLoans(ctx context.Context, limit, offset int) ([]LoanApplication, int, error) {
	if limit <= 0 {
		limit = 20
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM loan_applications`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+loanColumns+` FROM loan_applications ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []LoanApplication
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, loan)
	}
	return out, total, rows.Err()
}

func (r *repository) ListInstalments(ctx context.Context, loanID int64) ([]Instalment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+instalmentColumns+` FROM loan_instalments WHERE loan_id=$1 ORDER BY sequence`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstalments(rows)
}

func (r *repository) ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+repaymentColumns+` FROM loan_repayments WHERE loan_id=$1 ORDER BY paid_at`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Repayment
	for rows.Next() {
		rep, err := scanRepayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *repository) MarkOverdueInstalments(ctx context.Context, asOf time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE loan_instalments SET status='OVERDUE', updated_at=NOW()
WHERE due_date < $1 AND status IN ('PENDING','PARTIAL')
AND (paid_principal < expected_principal OR paid_interest < expected_interest OR paid_penalty < expected_penalty)`, asOf)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *repository) AssessPenalties(ctx context.Context, asOf time.Time, ratePercent decimal.Decimal) (int64, decimal.Decimal, error) {
	var count int64
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `WITH assessed AS (
	UPDATE loan_instalments i
	SET expected_penalty = ROUND(((i.expected_principal - i.paid_principal) + (i.expected_interest - i.paid_interest)) * $2 / 100, 2),
	    updated_at = NOW()
	WHERE i.status = 'OVERDUE' AND i.due_date < $1 AND i.expected_penalty = 0
	  AND (i.expected_principal - i.paid_principal) + (i.expected_interest - i.paid_interest) > 0
	RETURNING i.loan_id, i.expected_penalty AS fee
), bumped AS (
	UPDATE loan_applications l
	SET outstanding_balance = l.outstanding_balance + t.fee, updated_at = NOW()
	FROM (SELECT loan_id, SUM(fee) AS fee FROM assessed GROUP BY loan_id) t
	WHERE l.id = t.loan_id
	RETURNING l.id
)
SELECT COUNT(*), COALESCE(SUM(fee), 0) FROM assessed`, asOf, ratePercent).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return count, total, nil
}

func (r *repository) OpenDefaultsForDelinquents(ctx context.Context, asOf time.Time, minOverdue int) (int64, error) {
	cmd, err := r.db.Exec(ctx, `INSERT INTO loan_defaults (loan_id, status, opened_at)
SELECT i.loan_id, 'DEFAULTED', $1 FROM loan_instalments i
JOIN loan_applications l ON l.id = i.loan_id AND l.status NOT IN ('PAID','REJECTED','PENDING','APPROVED')
WHERE i.status = 'OVERDUE'
GROUP BY i.loan_id
HAVING COUNT(*) >= $2
ON CONFLICT (loan_id) WHERE status IN ('DEFAULTED','IN_COLLECTION') DO NOTHING`, asOf, minOverdue)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
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

func (r *txRepository) InsertLoan(ctx context.Context, loan LoanApplication) (LoanApplication, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO loan_applications (member_id, principal, term_months, interest_rate, interest_type, frequency,
monthly_repayment, total_interest, total_repayment, amount_repaid, outstanding_balance, status, interest_deducted_upfront, is_restructured)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11,$12,FALSE) RETURNING id, created_at, updated_at`,
		loan.MemberID, loan.Principal, loan.TermMonths, loan.InterestRate, loan.InterestType, loan.Frequency,
		loan.MonthlyRepayment, loan.TotalInterest, loan.TotalRepayment, loan.OutstandingBalance, loan.Status, loan.InterestDeductedUpfront)
	if err := row.Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return LoanApplication{}, err
	}
	return loan, nil
}

func (r *txRepository) GetLoanForUpdate(ctx context.Context, id int64) (LoanApplication, error) {
	loan, err := scanLoan(r.tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loan_applications WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoanApplication{}, shared.ErrNotFound
		}
		return LoanApplication{}, err
	}
	return loan, nil
}

func (r *txRepository) ListInstalmentsForUpdate(ctx context.Context, loanID int64) ([]Instalment, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+instalmentColumns+` FROM loan_instalments WHERE loan_id=$1 ORDER BY sequence FOR UPDATE`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstalments(rows)
}

func (r *txRepository) FindRepayment(ctx context.Context, loanID int64, reference string) (Repayment, bool, error) {
	rep, err := scanRepayment(r.tx.QueryRow(ctx, `SELECT `+repaymentColumns+` FROM loan_repayments WHERE loan_id=$1 AND reference=$2`, loanID, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Repayment{}, false, nil
		}
		return Repayment{}, false, err
	}
	return rep, true, nil
}

// InsertRepayment relies on the uq_loan_repayments_reference unique index
// to close the race between two concurrent submissions of one reference; an
// application-level check alone would leave a window.
func (r *txRepository) InsertRepayment(ctx context.Context, rep Repayment) (Repayment, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO loan_repayments (loan_id, reference, amount, principal_applied, interest_applied, penalty_applied, overpayment, method, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		rep.LoanID, rep.Reference, rep.Amount, rep.PrincipalApplied, rep.InterestApplied, rep.PenaltyApplied, rep.Overpayment, rep.Method, rep.PaidAt)
	if err := row.Scan(&rep.ID, &rep.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Repayment{}, shared.ErrDuplicateOperation
		}
		return Repayment{}, err
	}
	return rep, nil
}

func (r *txRepository) UpdateInstalment(ctx context.Context, inst Instalment) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE loan_instalments SET paid_principal=$2, paid_interest=$3, paid_penalty=$4, status=$5, updated_at=NOW() WHERE id=$1`,
		inst.ID, inst.PaidPrincipal, inst.PaidInterest, inst.PaidPenalty, inst.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateLoan(ctx context.Context, loan LoanApplication) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE loan_applications SET term_months=$2, interest_rate=$3, monthly_repayment=$4,
total_interest=$5, total_repayment=$6, amount_repaid=$7, outstanding_balance=$8, status=$9, is_restructured=$10,
next_payment_date=$11, last_payment_date=$12, disbursed_at=$13, closed_at=$14, updated_at=NOW() WHERE id=$1`,
		loan.ID, loan.TermMonths, loan.InterestRate, loan.MonthlyRepayment, loan.TotalInterest, loan.TotalRepayment,
		loan.AmountRepaid, loan.OutstandingBalance, loan.Status, loan.IsRestructured,
		loan.NextPaymentDate, loan.LastPaymentDate, loan.DisbursedAt, loan.ClosedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteUntouchedInstalments drops rows with no payment history; paid or
// partially paid instalments are never deleted.
func (r *txRepository) DeleteUntouchedInstalments(ctx context.Context, loanID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM loan_instalments
WHERE loan_id=$1 AND paid_principal = 0 AND paid_interest = 0 AND paid_penalty = 0`, loanID)
	return err
}

func (r *txRepository) InsertInstalments(ctx context.Context, insts []Instalment) error {
	for _, inst := range insts {
		if _, err := r.tx.Exec(ctx, `INSERT INTO loan_instalments (loan_id, sequence, due_date, expected_principal, expected_interest, expected_penalty, paid_principal, paid_interest, paid_penalty, status)
VALUES ($1,$2,$3,$4,$5,$6,0,0,0,$7)`,
			inst.LoanID, inst.Sequence, inst.DueDate, inst.ExpectedPrincipal, inst.ExpectedInterest, inst.ExpectedPenalty, inst.Status); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertRestructure(ctx context.Context, rec Restructure) (Restructure, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO loan_restructures (loan_id, type, old_term, new_term, old_rate, new_rate, old_payment, new_payment, waived_amount, grace_days, reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at`,
		rec.LoanID, rec.Type, rec.OldTerm, rec.NewTerm, rec.OldRate, rec.NewRate, rec.OldPayment, rec.NewPayment, rec.WaivedAmount, rec.GraceDays, rec.Reason)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return Restructure{}, err
	}
	return rec, nil
}

func (r *txRepository) ResolveOpenDefaults(ctx context.Context, loanID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE loan_defaults SET status='RESOLVED', resolved_at=$2 WHERE loan_id=$1 AND status IN ('DEFAULTED','IN_COLLECTION')`, loanID, at)
	return err
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

func collectInstalments(rows pgx.Rows) ([]Instalment, error) {
	var out []Instalment
	for rows.Next() {
		var i Instalment
		if err := rows.Scan(&i.ID, &i.LoanID, &i.Sequence, &i.DueDate,
			&i.ExpectedPrincipal, &i.ExpectedInterest, &i.ExpectedPenalty,
			&i.PaidPrincipal, &i.PaidInterest, &i.PaidPenalty,
			&i.Status, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanLoan(row pgx.Row) (LoanApplication, error) {
	var l LoanApplication
	err := row.Scan(&l.ID, &l.MemberID, &l.Principal, &l.TermMonths, &l.InterestRate, &l.InterestType, &l.Frequency,
		&l.MonthlyRepayment, &l.TotalInterest, &l.TotalRepayment, &l.AmountRepaid, &l.OutstandingBalance, &l.Status,
		&l.InterestDeductedUpfront, &l.IsRestructured, &l.NextPaymentDate, &l.LastPaymentDate, &l.DisbursedAt, &l.ClosedAt,
		&l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func scanRepayment(row pgx.Row) (Repayment, error) {
	var rep Repayment
	err := row.Scan(&rep.ID, &rep.LoanID, &rep.Reference, &rep.Amount, &rep.PrincipalApplied, &rep.InterestApplied,
		&rep.PenaltyApplied, &rep.Overpayment, &rep.Method, &rep.PaidAt, &rep.CreatedAt)
	return rep, err
}
