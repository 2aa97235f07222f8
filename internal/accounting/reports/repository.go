package reports

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// CenterTotal is a per-account, per-center aggregate row.
type CenterTotal struct {
	AccountID int64
	CenterBalance
}

// Repository aggregates posted journal lines at the storage layer.
type Repository interface {
	AccountTotals(ctx context.Context, companyID int64, from, to time.Time) ([]AccountBalance, error)
	CenterTotals(ctx context.Context, companyID int64, from, to time.Time) ([]CenterTotal, error)
}

type repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

// AccountTotals sums lines of posted entries of the company whose entry date
// falls in [from, to]. The entry's period_id is not consulted.
func (r *repository) AccountTotals(ctx context.Context, companyID int64, from, to time.Time) ([]AccountBalance, error) {
	rows, err := r.q.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_id
JOIN accounts a ON a.id = l.account_id
WHERE e.company_id = $1 AND e.status = 'POSTED' AND e.date BETWEEN $2 AND $3
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Category, &b.TotalDebit, &b.TotalCredit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CenterTotals groups the same line set by account and analysis center.
// Lines without a center are left out.
func (r *repository) CenterTotals(ctx context.Context, companyID int64, from, to time.Time) ([]CenterTotal, error) {
	rows, err := r.q.Query(ctx, `SELECT l.account_id, c.id, c.code, c.name,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_id
JOIN analysis_centers c ON c.id = l.analysis_center_id
WHERE e.company_id = $1 AND e.status = 'POSTED' AND e.date BETWEEN $2 AND $3
GROUP BY l.account_id, c.id, c.code, c.name
ORDER BY l.account_id, c.code`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CenterTotal
	for rows.Next() {
		var t CenterTotal
		if err := rows.Scan(&t.AccountID, &t.AnalysisCenterID, &t.Code, &t.Name, &t.TotalDebit, &t.TotalCredit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
