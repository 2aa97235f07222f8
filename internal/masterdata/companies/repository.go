package companies

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository answers tenant existence questions for the ledger core.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Get returns the company or shared.ErrCompanyNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := r.q.QueryRow(ctx, `SELECT id, code, name, created_at, updated_at FROM companies WHERE id=$1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, shared.ErrCompanyNotFound
		}
		return Company{}, err
	}
	return c, nil
}

// Exists reports whether the company row is present.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM companies WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

// LockForUpdate takes a row lock on the company so period range checks for
// the tenant run one at a time. Must be called inside a transaction.
func (r *Repository) LockForUpdate(ctx context.Context, id int64) error {
	var locked int64
	err := r.q.QueryRow(ctx, `SELECT id FROM companies WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrCompanyNotFound
		}
		return err
	}
	return nil
}

// ListIDs returns every company id in ascending order.
func (r *Repository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT id FROM companies ORDER BY id`)
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
