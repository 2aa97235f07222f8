package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// BatchRunner posts a batch of journals.
type BatchRunner interface {
	PostBatch(ctx context.Context, in journals.BatchInput) (journals.BatchResult, error)
}

// PostBatchJob drains TaskPostBatch tasks.
type PostBatchJob struct {
	Batch   BatchRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPostBatchJob constructs the job handler.
func NewPostBatchJob(batch BatchRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostBatchJob {
	return &PostBatchJob{Batch: batch, Logger: logger, Metrics: metrics}
}

// Handle posts the batch. Rejected input is not retried; an aborted batch is,
// and journals posted before the abort come back as already-posted failures.
func (j *PostBatchJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Batch == nil {
		return errors.New("post batch: dependencies not configured")
	}
	var payload PostBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("post batch: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskPostBatch)
	logger := j.log().With(
		slog.String("correlation_id", payload.CorrelationID.String()),
		slog.Int64("company_id", payload.CompanyID),
		slog.Int64("actor_id", payload.ActorID),
	)

	result, err := j.Batch.PostBatch(ctx, payload.Input())
	j.metrics().AddItems(TaskPostBatch, "posted", result.PostedCount)
	j.metrics().AddItems(TaskPostBatch, "failed", result.FailedCount)
	if err != nil {
		if shared.KindOf(err) == shared.KindValidation {
			logger.Warn("post batch rejected", slog.Any("error", err))
			return tracker.End(fmt.Errorf("post batch: %v: %w", err, asynq.SkipRetry))
		}
		logger.Error("post batch aborted", slog.Int("posted", result.PostedCount), slog.Any("error", err))
		return tracker.End(err)
	}
	for _, item := range result.Errors {
		logger.Warn("journal not posted", slog.Int64("journal_id", item.JournalID), slog.String("kind", item.Kind), slog.String("message", item.Message))
	}
	logger.Info("post batch completed", slog.Int("posted", result.PostedCount), slog.Int("failed", result.FailedCount))
	return tracker.End(nil)
}

func (j *PostBatchJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PostBatchJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPostBatch))
	}
	return slog.Default().With(slog.String("job", TaskPostBatch))
}
