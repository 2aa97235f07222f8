package centers

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Lookup resolves analysis centers by id regardless of owner so callers can
// decide which rule a center breaks.
type Lookup interface {
	FindByIDs(ctx context.Context, ids []int64) ([]AnalysisCenter, error)
}

// Repository reads analysis centers through a pool or an open transaction.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]AnalysisCenter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `SELECT id, company_id, code, name, kind, is_active, created_at, updated_at
FROM analysis_centers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AnalysisCenter
	for rows.Next() {
		var c AnalysisCenter
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Code, &c.Name, &c.Kind, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
