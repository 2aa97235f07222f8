package periods

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Metrics receives period lifecycle events.
type Metrics interface {
	PeriodTransition(action string)
}

// Invalidator drops derived reports once a company's ledger state changes.
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

// WithInvalidator attaches the report cache that must forget a company after a transition.
func (s *Service) WithInvalidator(c Invalidator) { s.cache = c }

// GetByID returns the period. A non-zero companyID hides periods of other tenants.
func (s *Service) GetByID(ctx context.Context, id, companyID int64) (Period, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if companyID != 0 && p.CompanyID != companyID {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

// ListByCompany returns the company's periods ordered by start date.
func (s *Service) ListByCompany(ctx context.Context, companyID int64) ([]Period, error) {
	if companyID <= 0 {
		return nil, shared.Validationf("company id required")
	}
	return s.repo.ListByCompany(ctx, companyID)
}

// Create opens a new period after confirming the company exists and no
// existing period of the company intersects [StartDate, EndDate].
func (s *Service) Create(ctx context.Context, in CreateInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockCompany(ctx, in.CompanyID); err != nil {
			return err
		}
		existing, found, err := tx.FindOverlapping(ctx, in.CompanyID, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if found {
			return &shared.PeriodOverlapError{ExistingPeriodID: existing.ID}
		}
		created, err = tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		return tx.Audit(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "period.create",
			Entity:   "accounting_period",
			EntityID: strconv.FormatInt(created.ID, 10),
			Meta: map[string]any{
				"company_id": in.CompanyID,
				"code":       in.Code,
				"start_date": in.StartDate,
				"end_date":   in.EndDate,
			},
			At: s.now(),
		})
	})
	if err != nil {
		return Period{}, err
	}
	s.observe(ctx, "create", created.CompanyID, false)
	return created, nil
}

// Close marks the period closed. Every journal in it must already be posted.
func (s *Service) Close(ctx context.Context, in TransitionInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var closed Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.lockScoped(ctx, tx, in)
		if err != nil {
			return err
		}
		if current.IsClosed {
			return shared.ErrPeriodAlreadyClosed
		}
		drafts, err := tx.CountJournals(ctx, current.ID, true)
		if err != nil {
			return err
		}
		if drafts > 0 {
			return fmt.Errorf("%w: %d draft journal(s) in period %d", shared.ErrDraftJournalsExist, drafts, current.ID)
		}
		at := s.now()
		closed, err = tx.SetClosed(ctx, current.ID, true, in.ActorID, at)
		if err != nil {
			return err
		}
		return tx.Audit(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "period.close",
			Entity:   "accounting_period",
			EntityID: strconv.FormatInt(current.ID, 10),
			Meta:     map[string]any{"company_id": current.CompanyID, "code": current.Code},
			At:       at,
		})
	})
	if err != nil {
		return Period{}, err
	}
	s.observe(ctx, "close", closed.CompanyID, true)
	return closed, nil
}

// Reopen returns a closed period to open. Later closed periods of the same
// company must be reopened first.
func (s *Service) Reopen(ctx context.Context, in TransitionInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var reopened Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.lockScoped(ctx, tx, in)
		if err != nil {
			return err
		}
		if !current.IsClosed {
			return shared.ErrPeriodNotClosed
		}
		later, err := tx.HasLaterClosed(ctx, current)
		if err != nil {
			return err
		}
		if later {
			return shared.ErrLaterPeriodClosed
		}
		at := s.now()
		reopened, err = tx.SetClosed(ctx, current.ID, false, in.ActorID, at)
		if err != nil {
			return err
		}
		return tx.Audit(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "period.reopen",
			Entity:   "accounting_period",
			EntityID: strconv.FormatInt(current.ID, 10),
			Meta:     map[string]any{"company_id": current.CompanyID, "code": current.Code},
			At:       at,
		})
	})
	if err != nil {
		return Period{}, err
	}
	s.observe(ctx, "reopen", reopened.CompanyID, true)
	return reopened, nil
}

// Delete removes an open period no journal references.
func (s *Service) Delete(ctx context.Context, in TransitionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	var companyID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.lockScoped(ctx, tx, in)
		if err != nil {
			return err
		}
		if current.IsClosed {
			return shared.ErrCannotDeleteClosedPeriod
		}
		refs, err := tx.CountJournals(ctx, current.ID, false)
		if err != nil {
			return err
		}
		if refs > 0 {
			return shared.ErrPeriodInUse
		}
		if err := tx.Delete(ctx, current.ID); err != nil {
			return err
		}
		companyID = current.CompanyID
		return tx.Audit(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "period.delete",
			Entity:   "accounting_period",
			EntityID: strconv.FormatInt(current.ID, 10),
			Meta: map[string]any{
				"company_id": current.CompanyID,
				"code":       current.Code,
				"start_date": current.StartDate,
				"end_date":   current.EndDate,
			},
			At: s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.observe(ctx, "delete", companyID, false)
	return nil
}

func (s *Service) lockScoped(ctx context.Context, tx TxRepository, in TransitionInput) (Period, error) {
	p, err := tx.GetForUpdate(ctx, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	if in.CompanyID != 0 && p.CompanyID != in.CompanyID {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (s *Service) observe(ctx context.Context, action string, companyID int64, invalidate bool) {
	if s.metrics != nil {
		s.metrics.PeriodTransition(action)
	}
	if invalidate && s.cache != nil {
		if err := shared.InvalidateCommitted(ctx, s.cache, companyID); err != nil {
			s.logger.Error("invalidate trial balance cache", slog.Int64("company_id", companyID), slog.Any("error", err))
		}
	}
	s.logger.Info("period "+action, slog.Int64("company_id", companyID))
}
