package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata/companies"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository exposes period reads and the transactional unit of work.
type Repository interface {
	Get(ctx context.Context, id int64) (Period, error)
	ListByCompany(ctx context.Context, companyID int64) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	LockCompany(ctx context.Context, companyID int64) error
	FindOverlapping(ctx context.Context, companyID int64, start, end time.Time) (Period, bool, error)
	Insert(ctx context.Context, in CreateInput) (Period, error)
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	CountJournals(ctx context.Context, periodID int64, draftOnly bool) (int, error)
	HasLaterClosed(ctx context.Context, p Period) (bool, error)
	SetClosed(ctx context.Context, id int64, closed bool, actorID int64, at time.Time) (Period, error)
	Delete(ctx context.Context, id int64) error
	Audit(ctx context.Context, log internalShared.AuditLog) error
}

type repository struct {
	pool    db.Pool
	timeout time.Duration
}

// NewRepository binds the repository to a pool. timeout bounds each unit of work.
func NewRepository(pool db.Pool, timeout time.Duration) Repository {
	return &repository{pool: pool, timeout: timeout}
}

const selectPeriod = `SELECT id, company_id, code, start_date, end_date, is_closed, closed_at, closed_by, created_at, updated_at FROM accounting_periods`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.Code, &p.StartDate, &p.EndDate, &p.IsClosed, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, selectPeriod+` WHERE id=$1`, id))
}

func (r *repository) ListByCompany(ctx context.Context, companyID int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx, selectPeriod+` WHERE company_id=$1 ORDER BY start_date`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.timeout, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockCompany(ctx context.Context, companyID int64) error {
	return companies.NewRepository(r.tx).LockForUpdate(ctx, companyID)
}

func (r *txRepository) FindOverlapping(ctx context.Context, companyID int64, start, end time.Time) (Period, bool, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, selectPeriod+`
WHERE company_id=$1 AND start_date <= $3 AND end_date >= $2 ORDER BY start_date LIMIT 1`, companyID, start, end))
	if err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			return Period{}, false, nil
		}
		return Period{}, false, err
	}
	return p, true, nil
}

func (r *txRepository) Insert(ctx context.Context, in CreateInput) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (company_id, code, start_date, end_date)
VALUES ($1,$2,$3,$4)
RETURNING id, company_id, code, start_date, end_date, is_closed, closed_at, closed_by, created_at, updated_at`,
		in.CompanyID, in.Code, in.StartDate, in.EndDate))
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, selectPeriod+` WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) CountJournals(ctx context.Context, periodID int64, draftOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM journal_entries WHERE period_id=$1`
	if draftOnly {
		query += ` AND status='DRAFT'`
	}
	var n int
	err := r.tx.QueryRow(ctx, query, periodID).Scan(&n)
	return n, err
}

func (r *txRepository) HasLaterClosed(ctx context.Context, p Period) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(
    SELECT 1 FROM accounting_periods
    WHERE company_id=$1 AND id<>$2 AND start_date > $3 AND is_closed)`, p.CompanyID, p.ID, p.EndDate).Scan(&exists)
	return exists, err
}

func (r *txRepository) SetClosed(ctx context.Context, id int64, closed bool, actorID int64, at time.Time) (Period, error) {
	var closedAt, closedBy any
	if closed {
		closedAt = at
		closedBy = nullInt(actorID)
	}
	return scanPeriod(r.tx.QueryRow(ctx, `UPDATE accounting_periods
SET is_closed=$2, closed_at=$3, closed_by=$4, updated_at=NOW()
WHERE id=$1
RETURNING id, company_id, code, start_date, end_date, is_closed, closed_at, closed_by, created_at, updated_at`,
		id, closed, closedAt, closedBy))
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounting_periods WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) Audit(ctx context.Context, log internalShared.AuditLog) error {
	return internalShared.NewAuditLogger(r.tx).Record(ctx, log)
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
