package journals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DefaultBatchMax bounds PostBatch when no limit is configured.
const DefaultBatchMax = 500

// Poster posts a single journal.
type Poster interface {
	Post(ctx context.Context, input PostInput) (JournalEntry, error)
}

// BatchMetrics receives per-item batch outcomes.
type BatchMetrics interface {
	BatchItem(outcome string)
}

// BatchInput carries de-duplicated journal ids posted by one actor.
type BatchInput struct {
	JournalIDs []int64
	CompanyID  int64
	ActorID    int64
}

// BatchError records why one journal of a batch was not posted.
type BatchError struct {
	JournalID int64  `json:"journal_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// BatchResult summarises a PostBatch run.
type BatchResult struct {
	PostedCount int          `json:"posted_count"`
	FailedCount int          `json:"failed_count"`
	Errors      []BatchError `json:"errors"`
}

// BatchPoster posts journals one by one. Every item runs in its own
// transaction, so a posted journal stays posted whatever happens to the
// items after it.
type BatchPoster struct {
	poster  Poster
	logger  *slog.Logger
	metrics BatchMetrics
	max     int
	timeout time.Duration
}

// NewBatchPoster builds a coordinator. maxItems <= 0 selects DefaultBatchMax and
// timeout <= 0 leaves the caller's deadline in charge.
func NewBatchPoster(poster Poster, logger *slog.Logger, maxItems int, timeout time.Duration) *BatchPoster {
	if logger == nil {
		logger = slog.Default()
	}
	if maxItems <= 0 {
		maxItems = DefaultBatchMax
	}
	return &BatchPoster{poster: poster, logger: logger, max: maxItems, timeout: timeout}
}

// WithMetrics attaches a metrics sink.
func (b *BatchPoster) WithMetrics(m BatchMetrics) { b.metrics = m }

// Validate checks the id list is non-empty, bounded, positive, and unique.
func (b *BatchPoster) Validate(in BatchInput) error {
	if len(in.JournalIDs) == 0 {
		return shared.ErrEmptyBatch
	}
	if len(in.JournalIDs) > b.max {
		return fmt.Errorf("%w: %d ids, limit %d", shared.ErrBatchTooLarge, len(in.JournalIDs), b.max)
	}
	seen := make(map[int64]struct{}, len(in.JournalIDs))
	for _, id := range in.JournalIDs {
		if id <= 0 {
			return shared.Validationf("journal id %d must be positive", id)
		}
		if _, dup := seen[id]; dup {
			return shared.Validationf("journal id %d repeated in batch", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// PostBatch posts each id in order. Validation, business-rule, and not-found
// failures are recorded in the result and the loop continues. An
// infrastructure failure or the batch deadline stops the loop; the partial
// result is returned with the error.
func (b *BatchPoster) PostBatch(ctx context.Context, in BatchInput) (BatchResult, error) {
	result := BatchResult{Errors: []BatchError{}}
	if err := b.Validate(in); err != nil {
		return result, err
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	for idx, id := range in.JournalIDs {
		if err := ctx.Err(); err != nil {
			b.logger.Warn("batch post interrupted", slog.Int("processed", idx), slog.Int("total", len(in.JournalIDs)), slog.Any("error", err))
			return result, fmt.Errorf("accounting: batch interrupted after %d of %d journals: %w", idx, len(in.JournalIDs), err)
		}
		_, err := b.poster.Post(ctx, PostInput{JournalID: id, CompanyID: in.CompanyID, ActorID: in.ActorID})
		if err == nil {
			result.PostedCount++
			b.observe("posted")
			continue
		}
		if !shared.Expected(err) {
			b.logger.Error("batch post aborted", slog.Int64("journal_id", id), slog.Any("error", err))
			b.observe("aborted")
			return result, fmt.Errorf("accounting: batch aborted at journal %d: %w", id, err)
		}
		result.FailedCount++
		result.Errors = append(result.Errors, BatchError{
			JournalID: id,
			Kind:      shared.KindOf(err).String(),
			Message:   err.Error(),
		})
		b.observe("failed")
	}
	b.logger.Info("batch post finished",
		slog.Int("posted", result.PostedCount),
		slog.Int("failed", result.FailedCount),
		slog.Int64("actor_id", in.ActorID))
	return result, nil
}

func (b *BatchPoster) observe(outcome string) {
	if b.metrics != nil {
		b.metrics.BatchItem(outcome)
	}
}

// UniqueIDs drops repeated ids while keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
