package accounting

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// JournalEngine creates and posts journal entries.
type JournalEngine interface {
	CreateDraft(ctx context.Context, input journals.CreateDraftInput) (journals.JournalEntry, error)
	Post(ctx context.Context, input journals.PostInput) (journals.JournalEntry, error)
	GetByID(ctx context.Context, id, companyID int64) (journals.JournalEntry, error)
	FindBySource(ctx context.Context, ref journals.SourceRef, companyID int64) (journals.JournalEntry, error)
}

// BatchCoordinator posts many journals with per-item failure accounting.
type BatchCoordinator interface {
	Validate(in journals.BatchInput) error
	PostBatch(ctx context.Context, in journals.BatchInput) (journals.BatchResult, error)
}

// PeriodManager owns the accounting period lifecycle.
type PeriodManager interface {
	Create(ctx context.Context, in periods.CreateInput) (periods.Period, error)
	Close(ctx context.Context, in periods.TransitionInput) (periods.Period, error)
	Reopen(ctx context.Context, in periods.TransitionInput) (periods.Period, error)
	Delete(ctx context.Context, in periods.TransitionInput) error
	GetByID(ctx context.Context, id, companyID int64) (periods.Period, error)
	ListByCompany(ctx context.Context, companyID int64) ([]periods.Period, error)
}

// TrialBalancer aggregates posted lines into reports.
type TrialBalancer interface {
	GetTrialBalanceWithAnalysisCenters(ctx context.Context, companyID, periodID int64, includeBreakdown bool) ([]reports.AccountBalance, error)
	Summary(ctx context.Context, companyID, periodID int64) (reports.Summary, error)
	ProfitAndLoss(ctx context.Context, companyID, periodID int64) (reports.ProfitAndLoss, error)
	BalanceSheet(ctx context.Context, companyID, periodID int64) (reports.BalanceSheet, error)
}

// BatchEnqueuer hands a batch to the background worker.
type BatchEnqueuer interface {
	EnqueuePostBatch(ctx context.Context, in journals.BatchInput, key string) (string, error)
}

// Ledger is the entry point orchestration layers call into.
type Ledger struct {
	Journals JournalEngine
	Batch    BatchCoordinator
	Periods  PeriodManager
	Reports  TrialBalancer
}

// CreateJournal records a balanced draft entry.
func (l *Ledger) CreateJournal(ctx context.Context, in journals.CreateDraftInput) (journals.JournalEntry, error) {
	return l.Journals.CreateDraft(ctx, in)
}

// GetJournalByID returns the entry; companyID 0 disables tenant scoping.
func (l *Ledger) GetJournalByID(ctx context.Context, id, companyID int64) (journals.JournalEntry, error) {
	return l.Journals.GetByID(ctx, id, companyID)
}

// FindJournalBySource returns the entry linked to a source document.
func (l *Ledger) FindJournalBySource(ctx context.Context, module string, ref uuid.UUID, companyID int64) (journals.JournalEntry, error) {
	return l.Journals.FindBySource(ctx, journals.SourceRef{Module: module, ID: ref}, companyID)
}

// PostJournal transitions a draft to posted.
func (l *Ledger) PostJournal(ctx context.Context, in journals.PostInput) (journals.JournalEntry, error) {
	return l.Journals.Post(ctx, in)
}

// PostBatch posts each id independently.
func (l *Ledger) PostBatch(ctx context.Context, in journals.BatchInput) (journals.BatchResult, error) {
	return l.Batch.PostBatch(ctx, in)
}

// ValidateBatch applies the batch bounds without posting anything.
func (l *Ledger) ValidateBatch(in journals.BatchInput) error {
	return l.Batch.Validate(in)
}

func (l *Ledger) CreatePeriod(ctx context.Context, in periods.CreateInput) (periods.Period, error) {
	return l.Periods.Create(ctx, in)
}

func (l *Ledger) GetPeriodByID(ctx context.Context, id, companyID int64) (periods.Period, error) {
	return l.Periods.GetByID(ctx, id, companyID)
}

func (l *Ledger) GetPeriodsByCompany(ctx context.Context, companyID int64) ([]periods.Period, error) {
	return l.Periods.ListByCompany(ctx, companyID)
}

func (l *Ledger) ClosePeriod(ctx context.Context, in periods.TransitionInput) (periods.Period, error) {
	return l.Periods.Close(ctx, in)
}

func (l *Ledger) ReopenPeriod(ctx context.Context, in periods.TransitionInput) (periods.Period, error) {
	return l.Periods.Reopen(ctx, in)
}

func (l *Ledger) DeletePeriod(ctx context.Context, in periods.TransitionInput) error {
	return l.Periods.Delete(ctx, in)
}

// GetTrialBalance returns per-account posted totals for the period.
func (l *Ledger) GetTrialBalance(ctx context.Context, companyID, periodID int64) ([]reports.AccountBalance, error) {
	return l.Reports.GetTrialBalanceWithAnalysisCenters(ctx, companyID, periodID, false)
}

// GetTrialBalanceWithAnalysisCenters optionally nests per-center totals.
func (l *Ledger) GetTrialBalanceWithAnalysisCenters(ctx context.Context, companyID, periodID int64, includeBreakdown bool) ([]reports.AccountBalance, error) {
	return l.Reports.GetTrialBalanceWithAnalysisCenters(ctx, companyID, periodID, includeBreakdown)
}

// Options tunes the wiring built by New.
type Options struct {
	TxTimeout    time.Duration
	BatchTimeout time.Duration
	BatchMax     int
	CacheTTL     time.Duration
}

// Metrics is the union of the sinks the ledger services report into.
type Metrics interface {
	journals.Metrics
	journals.BatchMetrics
	periods.Metrics
}

// Components exposes the concrete services behind a Ledger.
type Components struct {
	Journals *journals.Service
	Batch    *journals.BatchPoster
	Periods  *periods.Service
	Reports  *reports.Service
	Cache    *reports.Cache
}

// New wires the ledger services onto a Postgres pool and an optional Redis
// client. metrics may be nil.
func New(pool db.Pool, rdb *redis.Client, opts Options, logger *slog.Logger, metrics Metrics) (*Ledger, Components) {
	cache := reports.NewCache(rdb, opts.CacheTTL)

	periodSvc := periods.NewService(periods.NewRepository(pool, opts.TxTimeout), logger)
	periodSvc.WithInvalidator(cache)

	journalSvc := journals.NewService(journals.NewRepository(pool, opts.TxTimeout), logger)
	journalSvc.WithInvalidator(cache)

	batch := journals.NewBatchPoster(journalSvc, logger, opts.BatchMax, opts.BatchTimeout)

	reportSvc := reports.NewService(periodSvc, reports.NewRepository(pool), cache, logger)

	if metrics != nil {
		periodSvc.WithMetrics(metrics)
		journalSvc.WithMetrics(metrics)
		batch.WithMetrics(metrics)
	}

	ledger := &Ledger{Journals: journalSvc, Batch: batch, Periods: periodSvc, Reports: reportSvc}
	return ledger, Components{Journals: journalSvc, Batch: batch, Periods: periodSvc, Reports: reportSvc, Cache: cache}
}
