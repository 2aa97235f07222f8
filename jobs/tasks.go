package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLedger carries user-initiated ledger work and is drained first.
	QueueLedger = "ledger"
	// TaskPostBatch posts a batch of draft journals on behalf of an actor.
	TaskPostBatch = "ledger:post_batch"
	// TaskGLIntegrity scans posted totals of every period for imbalance.
	TaskGLIntegrity = "ledger:gl_integrity"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PostBatchPayload describes a batch accepted over HTTP and handed to the worker.
type PostBatchPayload struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CompanyID     int64     `json:"company_id"`
	ActorID       int64     `json:"actor_id"`
	JournalIDs    []int64   `json:"journal_ids"`
}

// Input converts the payload into a batch request.
func (p PostBatchPayload) Input() journals.BatchInput {
	return journals.BatchInput{JournalIDs: p.JournalIDs, CompanyID: p.CompanyID, ActorID: p.ActorID}
}

// NewPostBatchTask builds the task for payload. A non-empty key pins the task
// id so a resubmission with the same key is rejected by the queue.
func NewPostBatchTask(payload PostBatchPayload, key string) (*asynq.Task, string, error) {
	if payload.CompanyID <= 0 || payload.ActorID <= 0 {
		return nil, "", errors.New("post batch: company and actor required")
	}
	if len(payload.JournalIDs) == 0 {
		return nil, "", errors.New("post batch: no journal ids")
	}
	if payload.CorrelationID == uuid.Nil {
		payload.CorrelationID = uuid.New()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	taskID := postBatchTaskID(payload.CompanyID, key, payload.CorrelationID)
	return asynq.NewTask(TaskPostBatch, body, asynq.Queue(QueueLedger), asynq.TaskID(taskID), asynq.MaxRetry(3)), taskID, nil
}

func postBatchTaskID(companyID int64, key string, correlation uuid.UUID) string {
	if key != "" {
		return fmt.Sprintf("%s:%d:%s", TaskPostBatch, companyID, key)
	}
	return fmt.Sprintf("%s:%s", TaskPostBatch, correlation)
}

// GLIntegrityPayload scopes the integrity scan. Zero CompanyID scans all companies.
type GLIntegrityPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewGLIntegrityTask creates the scheduled integrity scan task.
func NewGLIntegrityTask(companyID int64) (*asynq.Task, error) {
	body, err := json.Marshal(GLIntegrityPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault)), nil
}
