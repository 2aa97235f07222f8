package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration is one ordered schema change.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

const migrationLockID = 72_410_001

// Migrate applies pending migrations in version order, one transaction each.
func Migrate(ctx context.Context, b Beginner, migrations []Migration) (int, error) {
	applied := 0
	for _, m := range migrations {
		var ran bool
		err := WithTx(ctx, b, time.Minute, func(ctx context.Context, tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
				return err
			}
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, m.Version).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return nil
			}
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1,$2)`, m.Version, m.Name); err != nil {
				return err
			}
			ran = true
			return nil
		})
		if err != nil {
			return applied, fmt.Errorf("platform/db: migration %s (%s): %w", m.Version, m.Name, err)
		}
		if ran {
			applied++
		}
	}
	return applied, nil
}

// LedgerMigrations creates the relational schema of the ledger core.
var LedgerMigrations = []Migration{
	{
		Version: "20240101000001",
		Name:    "create_companies_accounts_centers",
		SQL: `
CREATE TABLE IF NOT EXISTS companies (
    id         BIGSERIAL PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accounts (
    id         BIGSERIAL PRIMARY KEY,
    company_id BIGINT NOT NULL REFERENCES companies(id),
    code       TEXT NOT NULL,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL,
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_accounts_company_code UNIQUE (company_id, code)
);

CREATE TABLE IF NOT EXISTS analysis_centers (
    id         BIGSERIAL PRIMARY KEY,
    company_id BIGINT NOT NULL REFERENCES companies(id),
    code       TEXT NOT NULL,
    name       TEXT NOT NULL,
    kind       TEXT NOT NULL DEFAULT 'COST',
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_analysis_centers_company_code UNIQUE (company_id, code)
);
`,
	},
	{
		Version: "20240101000002",
		Name:    "create_periods_journals",
		SQL: `
CREATE TABLE IF NOT EXISTS accounting_periods (
    id         BIGSERIAL PRIMARY KEY,
    company_id BIGINT NOT NULL REFERENCES companies(id),
    code       TEXT NOT NULL DEFAULT '',
    start_date TIMESTAMPTZ NOT NULL,
    end_date   TIMESTAMPTZ NOT NULL,
    is_closed  BOOLEAN NOT NULL DEFAULT FALSE,
    closed_at  TIMESTAMPTZ,
    closed_by  BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT ck_accounting_periods_range CHECK (end_date > start_date)
);

CREATE INDEX IF NOT EXISTS idx_accounting_periods_company ON accounting_periods (company_id, start_date);

CREATE TABLE IF NOT EXISTS journal_entries (
    id          BIGSERIAL PRIMARY KEY,
    company_id  BIGINT NOT NULL REFERENCES companies(id),
    period_id   BIGINT NOT NULL REFERENCES accounting_periods(id) ON DELETE RESTRICT,
    date        TIMESTAMPTZ NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    reference   TEXT NOT NULL DEFAULT '',
    currency    CHAR(3) NOT NULL,
    status      TEXT NOT NULL DEFAULT 'DRAFT',
    created_by  BIGINT,
    posted_by   BIGINT,
    posted_at   TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT ck_journal_entries_status CHECK (status IN ('DRAFT','POSTED'))
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_period_status ON journal_entries (period_id, status);
CREATE INDEX IF NOT EXISTS idx_journal_entries_company_date ON journal_entries (company_id, status, date);

CREATE TABLE IF NOT EXISTS journal_lines (
    id                 BIGSERIAL PRIMARY KEY,
    journal_id         BIGINT NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
    line_no            INT NOT NULL,
    account_id         BIGINT NOT NULL REFERENCES accounts(id),
    analysis_center_id BIGINT REFERENCES analysis_centers(id),
    debit              NUMERIC(20,4) NOT NULL DEFAULT 0,
    credit             NUMERIC(20,4) NOT NULL DEFAULT 0,
    narrative          TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT ck_journal_lines_amounts CHECK (debit >= 0 AND credit >= 0)
);

CREATE INDEX IF NOT EXISTS idx_journal_lines_journal ON journal_lines (journal_id, line_no);
CREATE INDEX IF NOT EXISTS idx_journal_lines_account ON journal_lines (account_id);

CREATE TABLE IF NOT EXISTS source_links (
    module     TEXT NOT NULL,
    ref_id     UUID NOT NULL,
    journal_id BIGINT NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_source_links UNIQUE (module, ref_id)
);
`,
	},
	{
		Version: "20240101000003",
		Name:    "create_audit_logs",
		SQL: `
CREATE TABLE IF NOT EXISTS audit_logs (
    id          BIGSERIAL PRIMARY KEY,
    actor_id    BIGINT NOT NULL,
    action      TEXT NOT NULL,
    entity      TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    meta        JSONB NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity, entity_id);
`,
	},
}
