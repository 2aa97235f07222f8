package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// CompanyLister enumerates tenants.
type CompanyLister interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

// PeriodLister lists the periods of one company.
type PeriodLister interface {
	ListByCompany(ctx context.Context, companyID int64) ([]periods.Period, error)
}

// Summarizer builds the trial balance summary of a period from storage,
// bypassing any report cache.
type Summarizer interface {
	Reconcile(ctx context.Context, companyID, periodID int64) (reports.Summary, error)
}

// ViolationRecorder counts unbalanced periods.
type ViolationRecorder interface {
	IntegrityViolation(companyID int64)
}

// Imbalance describes a period whose posted debits and credits disagree.
type Imbalance struct {
	CompanyID   int64
	PeriodID    int64
	PeriodCode  string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// IntegrityReport summarises one scan.
type IntegrityReport struct {
	Companies   int
	Periods     int
	Imbalances  []Imbalance
	CompletedAt time.Time
}

// GLIntegrityJob verifies that every period's posted lines balance.
type GLIntegrityJob struct {
	Companies  CompanyLister
	Periods    PeriodLister
	Reports    Summarizer
	Violations ViolationRecorder
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(companies CompanyLister, periodLister PeriodLister, summarizer Summarizer, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Companies: companies,
		Periods:   periodLister,
		Reports:   summarizer,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan for the task's scope.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload GLIntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("gl integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.CompanyID)
	return err
}

// Run scans companyID, or every company when it is zero. Imbalances are
// reported, not returned as errors; only lookup failures fail the run.
func (j *GLIntegrityJob) Run(ctx context.Context, companyID int64) (IntegrityReport, error) {
	if j == nil || j.Companies == nil || j.Periods == nil || j.Reports == nil {
		return IntegrityReport{}, errors.New("gl integrity: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskGLIntegrity)
	start := j.now()
	logger := j.log()

	companyIDs := []int64{companyID}
	if companyID <= 0 {
		ids, err := j.Companies.ListIDs(ctx)
		if err != nil {
			logger.Error("list companies", slog.Any("error", err))
			return IntegrityReport{}, tracker.End(err)
		}
		companyIDs = ids
	}

	var report IntegrityReport
	for _, id := range companyIDs {
		list, err := j.Periods.ListByCompany(ctx, id)
		if err != nil {
			logger.Error("list periods", slog.Int64("company_id", id), slog.Any("error", err))
			return report, tracker.End(err)
		}
		report.Companies++
		for _, p := range list {
			summary, err := j.Reports.Reconcile(ctx, id, p.ID)
			if err != nil {
				logger.Error("summarise period", slog.Int64("company_id", id), slog.Int64("period_id", p.ID), slog.Any("error", err))
				return report, tracker.End(err)
			}
			report.Periods++
			if summary.Balanced() {
				continue
			}
			imbalance := Imbalance{
				CompanyID:   id,
				PeriodID:    p.ID,
				PeriodCode:  p.Code,
				TotalDebit:  summary.TotalDebit,
				TotalCredit: summary.TotalCredit,
			}
			report.Imbalances = append(report.Imbalances, imbalance)
			logger.Error("ledger imbalance detected",
				slog.Int64("company_id", id),
				slog.Int64("period_id", p.ID),
				slog.String("period_code", p.Code),
				slog.String("total_debit", summary.TotalDebit.String()),
				slog.String("total_credit", summary.TotalCredit.String()),
			)
			if j.Violations != nil {
				j.Violations.IntegrityViolation(id)
			}
		}
	}

	j.metrics().AddItems(TaskGLIntegrity, "checked", report.Periods)
	j.metrics().AddItems(TaskGLIntegrity, "unbalanced", len(report.Imbalances))
	report.CompletedAt = j.now()
	logger.Info("gl integrity check completed",
		slog.Int("companies", report.Companies),
		slog.Int("periods", report.Periods),
		slog.Int("imbalances", len(report.Imbalances)),
		slog.Duration("duration", report.CompletedAt.Sub(start)),
	)
	return report, tracker.End(nil)
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *GLIntegrityJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *GLIntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
