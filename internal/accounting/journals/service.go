package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/centers"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Metrics receives journal lifecycle events.
type Metrics interface {
	DraftCreated()
	JournalPosted()
}

// Invalidator drops derived reports once a company's posted state changes.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID int64) error
}

type Service struct {
	repo    Repository
	logger  *slog.Logger
	metrics Metrics
	cache   Invalidator
	now     func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a metrics sink.
func (s *Service) WithMetrics(m Metrics) { s.metrics = m }

// WithInvalidator attaches the report cache that must forget a company after a post.
func (s *Service) WithInvalidator(c Invalidator) { s.cache = c }

// GetByID returns the entry with its lines. A non-zero companyID hides
// entries of other tenants.
func (s *Service) GetByID(ctx context.Context, id, companyID int64) (JournalEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if companyID != 0 && entry.CompanyID != companyID {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry, nil
}

// FindBySource returns the entry linked to a source document.
func (s *Service) FindBySource(ctx context.Context, ref SourceRef, companyID int64) (JournalEntry, error) {
	if ref.Module == "" || ref.ID == uuid.Nil {
		return JournalEntry{}, shared.Validationf("source module and id required")
	}
	entry, err := s.repo.FindBySource(ctx, ref.Module, ref.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	if companyID != 0 && entry.CompanyID != companyID {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry, nil
}

// CreateDraft persists a balanced draft entry against an open period.
func (s *Service) CreateDraft(ctx context.Context, input CreateDraftInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := openPeriod(ctx, tx, input.PeriodID, input.CompanyID)
		if err != nil {
			return err
		}
		if !period.Contains(input.Date) {
			// Reports select by entry date, so this entry counts toward another period.
			s.logger.Warn("journal date outside period",
				slog.Int64("period_id", period.ID),
				slog.Time("date", input.Date),
				slog.Time("period_start", period.StartDate),
				slog.Time("period_end", period.EndDate))
		}
		if err := accounts.NewValidator(tx.Accounts()).EnsureExist(ctx, input.CompanyID, input.accountIDs()); err != nil {
			return err
		}
		if err := centers.NewValidator(tx.Centers()).EnsureUsable(ctx, input.CompanyID, input.analysisCenterIDs()); err != nil {
			return err
		}
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		inserted.Lines, err = tx.InsertJournalLines(ctx, inserted.ID, input.Lines)
		if err != nil {
			return err
		}
		meta := map[string]any{
			"company_id": input.CompanyID,
			"period_id":  input.PeriodID,
			"lines":      len(input.Lines),
			"currency":   input.Currency,
		}
		if input.Source != nil {
			if err := tx.LinkSource(ctx, *input.Source, inserted.ID); err != nil {
				if errors.Is(err, shared.ErrSourceConflict) {
					return shared.ErrSourceAlreadyLinked
				}
				return err
			}
			meta["source_module"] = input.Source.Module
			meta["source_id"] = input.Source.ID.String()
		}
		if err := tx.Audit(ctx, internalShared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "journal.create",
			Entity:   "journal_entry",
			EntityID: strconv.FormatInt(inserted.ID, 10),
			Meta:     meta,
			At:       s.now(),
		}); err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.DraftCreated()
	}
	s.logger.Info("journal draft created", slog.Int64("journal_id", entry.ID), slog.Int64("company_id", entry.CompanyID))
	return entry, nil
}

// Post transitions a draft to posted. Balance and analysis centers are
// checked again against the stored lines.
func (s *Service) Post(ctx context.Context, input PostInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, input.JournalID)
		if err != nil {
			return err
		}
		if input.CompanyID != 0 && current.CompanyID != input.CompanyID {
			return shared.ErrJournalNotFound
		}
		if current.Status == JournalStatusPosted {
			return shared.ErrAlreadyPosted
		}
		if _, err := openPeriod(ctx, tx, current.PeriodID, current.CompanyID); err != nil {
			return err
		}
		if len(current.Lines) == 0 {
			return shared.ErrNoLines
		}
		if !current.IsBalanced() {
			return shared.ErrUnbalanced
		}
		if err := centers.NewValidator(tx.Centers()).EnsureUsable(ctx, current.CompanyID, current.AnalysisCenterIDs()); err != nil {
			return err
		}
		at := s.now()
		if err := tx.MarkPosted(ctx, current.ID, input.ActorID, at); err != nil {
			return err
		}
		debit, _ := current.Totals()
		if err := tx.Audit(ctx, internalShared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: strconv.FormatInt(current.ID, 10),
			Meta: map[string]any{
				"company_id": current.CompanyID,
				"period_id":  current.PeriodID,
				"amount":     debit.String(),
			},
			At: at,
		}); err != nil {
			return err
		}
		current.Status = JournalStatusPosted
		current.PostedBy = &input.ActorID
		current.PostedAt = &at
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalPosted()
	}
	if s.cache != nil {
		if err := shared.InvalidateCommitted(ctx, s.cache, entry.CompanyID); err != nil {
			s.logger.Error("invalidate trial balance cache", slog.Int64("company_id", entry.CompanyID), slog.Any("error", err))
		}
	}
	return entry, nil
}

func openPeriod(ctx context.Context, tx TxRepository, periodID, companyID int64) (periods.Period, error) {
	period, err := tx.GetPeriodForShare(ctx, periodID)
	if err != nil {
		return periods.Period{}, err
	}
	if period.CompanyID != companyID {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	if period.IsClosed {
		return periods.Period{}, fmt.Errorf("%w: %s", shared.ErrPeriodClosed, periodLabel(period))
	}
	return period, nil
}

func periodLabel(p periods.Period) string {
	if p.Code != "" {
		return p.Code
	}
	return strconv.FormatInt(p.ID, 10)
}
