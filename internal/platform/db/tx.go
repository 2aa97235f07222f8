package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the statement surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner opens transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Pool is a Querier that can also open transactions. *pgxpool.Pool satisfies it.
type Pool interface {
	Querier
	Beginner
}

// DefaultTxTimeout bounds a single unit of work when callers pass zero.
const DefaultTxTimeout = 15 * time.Second

// ErrTxTimeout is returned when the unit of work exceeded its deadline.
var ErrTxTimeout = errors.New("platform/db: transaction timed out")

// WithTx executes fn within a read-committed transaction bounded by timeout.
// The transaction is rolled back when fn fails or the deadline passes and
// committed otherwise.
func WithTx(ctx context.Context, b Beginner, timeout time.Duration, fn func(context.Context, pgx.Tx) error) error {
	if b == nil {
		return errors.New("platform/db: no transaction source")
	}
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := b.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapDeadline(ctx, fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		// Rollback after commit is a no-op.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, tx); err != nil {
		return wrapDeadline(ctx, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDeadline(ctx, fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func wrapDeadline(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTxTimeout) {
		return fmt.Errorf("%w: %w", ErrTxTimeout, err)
	}
	return err
}
