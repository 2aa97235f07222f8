package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/centers"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	FindBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. Lookups and the
// audit sink it hands out are bound to the same transaction.
type TxRepository interface {
	Accounts() accounts.Lookup
	Centers() centers.Lookup
	GetPeriodForShare(ctx context.Context, periodID int64) (periods.Period, error)
	InsertJournalEntry(ctx context.Context, in CreateDraftInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	LinkSource(ctx context.Context, ref SourceRef, entryID int64) error
	GetJournalForUpdate(ctx context.Context, entryID int64) (JournalEntry, error)
	MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error
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

const selectEntry = `SELECT e.id, e.company_id, e.period_id, e.date, e.description, e.reference, e.currency, e.status,
       COALESCE(e.created_by, 0), e.posted_by, e.posted_at, s.module, s.ref_id, e.created_at, e.updated_at
FROM journal_entries e
LEFT JOIN source_links s ON s.journal_id = e.id`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e      JournalEntry
		module *string
		ref    *uuid.UUID
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.PeriodID, &e.Date, &e.Description, &e.Reference, &e.Currency, &e.Status,
		&e.CreatedBy, &e.PostedBy, &e.PostedAt, &module, &ref, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	if module != nil && ref != nil {
		e.Source = &SourceRef{Module: *module, ID: *ref}
	}
	return e, nil
}

func loadLines(ctx context.Context, q db.Querier, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_id, line_no, account_id, analysis_center_id, debit, credit, narrative, created_at
FROM journal_lines WHERE journal_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.LineNo, &line.AccountID, &line.AnalysisCenterID,
			&line.Debit, &line.Credit, &line.Narrative, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, selectEntry+` WHERE e.id=$1`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.pool, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) FindBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, selectEntry+` WHERE s.module=$1 AND s.ref_id=$2`, module, ref))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.pool, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.timeout, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Accounts() accounts.Lookup {
	return accounts.NewRepository(r.tx)
}

func (r *txRepository) Centers() centers.Lookup {
	return centers.NewRepository(r.tx)
}

// GetPeriodForShare reads the period under a share lock so a concurrent close
// waits for this transaction.
func (r *txRepository) GetPeriodForShare(ctx context.Context, periodID int64) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, start_date, end_date, is_closed, closed_at, closed_by, created_at, updated_at
FROM accounting_periods WHERE id=$1 FOR SHARE`, periodID).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.StartDate, &p.EndDate, &p.IsClosed, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrPeriodNotFound
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in CreateDraftInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (company_id, period_id, date, description, reference, currency, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,'DRAFT',$7) RETURNING id, created_at, updated_at`,
		in.CompanyID, in.PeriodID, in.Date, in.Description, in.Reference, in.Currency, nullInt(in.ActorID))
	entry := JournalEntry{
		CompanyID:   in.CompanyID,
		PeriodID:    in.PeriodID,
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		Currency:    in.Currency,
		Status:      JournalStatusDraft,
		CreatedBy:   in.ActorID,
		Source:      in.Source,
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for idx, line := range lines {
		stored := JournalLine{
			JournalID:        entryID,
			LineNo:           idx + 1,
			AccountID:        line.AccountID,
			AnalysisCenterID: line.AnalysisCenterID,
			Debit:            line.Debit,
			Credit:           line.Credit,
			Narrative:        line.Narrative,
		}
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (journal_id, line_no, account_id, analysis_center_id, debit, credit, narrative)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
			entryID, stored.LineNo, line.AccountID, line.AnalysisCenterID, line.Debit, line.Credit, line.Narrative).
			Scan(&stored.ID, &stored.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (r *txRepository) LinkSource(ctx context.Context, ref SourceRef, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, journal_id) VALUES ($1,$2,$3)`, ref.Module, ref.ID, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_source_links" {
			return shared.ErrSourceConflict
		}
		return err
	}
	return nil
}

// GetJournalForUpdate loads the entry and its lines, holding a row lock on the
// entry until the transaction ends.
func (r *txRepository) GetJournalForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, selectEntry+` WHERE e.id=$1 FOR UPDATE OF e`, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// MarkPosted transitions a draft. Zero affected rows means another
// transaction posted it first.
func (r *txRepository) MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 AND status='DRAFT'`, entryID, nullInt(actorID), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyPosted
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
