package accounts

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Lookup resolves account ids scoped to a company.
type Lookup interface {
	ExistingIDs(ctx context.Context, companyID int64, ids []int64) ([]int64, error)
}

// Repository reads accounts through a pool or an open transaction.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// ExistingIDs returns the subset of ids owned by companyID.
func (r *Repository) ExistingIDs(ctx context.Context, companyID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `SELECT id FROM accounts WHERE company_id=$1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	return found, rows.Err()
}
