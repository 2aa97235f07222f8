package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PeriodReader resolves a period scoped to a company.
type PeriodReader interface {
	GetByID(ctx context.Context, id, companyID int64) (periods.Period, error)
}

// Service builds trial balances and the statements derived from them.
type Service struct {
	periods PeriodReader
	repo    Repository
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
	timeout time.Duration
}

// DefaultLoadTimeout bounds a shared trial balance load.
const DefaultLoadTimeout = 30 * time.Second

func NewService(periods PeriodReader, repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{periods: periods, repo: repo, cache: cache, logger: logger, timeout: DefaultLoadTimeout}
}

// WithLoadTimeout overrides DefaultLoadTimeout.
func (s *Service) WithLoadTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// GetTrialBalance returns one row per account touched by posted entries dated
// inside the period.
func (s *Service) GetTrialBalance(ctx context.Context, companyID, periodID int64) ([]AccountBalance, error) {
	return s.GetTrialBalanceWithAnalysisCenters(ctx, companyID, periodID, false)
}

// GetTrialBalanceWithAnalysisCenters is GetTrialBalance with optional
// per-center sums nested under each account.
func (s *Service) GetTrialBalanceWithAnalysisCenters(ctx context.Context, companyID, periodID int64, includeBreakdown bool) ([]AccountBalance, error) {
	if companyID <= 0 || periodID <= 0 {
		return nil, shared.Validationf("company id and period id required")
	}
	period, err := s.periods.GetByID(ctx, periodID, companyID)
	if err != nil {
		return nil, err
	}

	key, err := s.cache.Key(ctx, companyID, strconv.FormatInt(periodID, 10), strconv.FormatBool(includeBreakdown))
	if err != nil {
		s.logger.Warn("trial balance cache unavailable", slog.Int64("company_id", companyID), slog.Any("error", err))
		return s.load(ctx, period, includeBreakdown)
	}
	var cached []AccountBalance
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("trial balance cache read", slog.String("key", key), slog.Any("error", err))
	} else if hit {
		return cached, nil
	}

	// The load is shared by every caller waiting on key, so one caller
	// leaving must not cancel it for the rest.
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		rows, err := s.load(loadCtx, period, includeBreakdown)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(loadCtx, key, rows); err != nil {
			s.logger.Warn("trial balance cache write", slog.String("key", key), slog.Any("error", err))
		}
		return rows, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]AccountBalance), nil
	}
}

// Summary groups the period's trial balance by category.
func (s *Service) Summary(ctx context.Context, companyID, periodID int64) (Summary, error) {
	rows, err := s.GetTrialBalance(ctx, companyID, periodID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rows), nil
}

// Reconcile summarises the period straight from storage. The cache is neither
// read nor written, so the result reflects committed state at call time.
func (s *Service) Reconcile(ctx context.Context, companyID, periodID int64) (Summary, error) {
	if companyID <= 0 || periodID <= 0 {
		return Summary{}, shared.Validationf("company id and period id required")
	}
	period, err := s.periods.GetByID(ctx, periodID, companyID)
	if err != nil {
		return Summary{}, err
	}
	rows, err := s.load(ctx, period, false)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rows), nil
}

// ProfitAndLoss derives the income statement for the period.
func (s *Service) ProfitAndLoss(ctx context.Context, companyID, periodID int64) (ProfitAndLoss, error) {
	rows, err := s.GetTrialBalance(ctx, companyID, periodID)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(rows), nil
}

// BalanceSheet derives the period movement balance sheet.
func (s *Service) BalanceSheet(ctx context.Context, companyID, periodID int64) (BalanceSheet, error) {
	rows, err := s.GetTrialBalance(ctx, companyID, periodID)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(rows), nil
}

func (s *Service) load(ctx context.Context, period periods.Period, includeBreakdown bool) ([]AccountBalance, error) {
	var (
		rows    []AccountBalance
		centers []CenterTotal
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.AccountTotals(ctx, period.CompanyID, period.StartDate, period.EndDate)
		if err != nil {
			return fmt.Errorf("accounting: aggregate accounts: %w", err)
		}
		return nil
	})
	if includeBreakdown {
		g.Go(func() error {
			var err error
			centers, err = s.repo.CenterTotals(ctx, period.CompanyID, period.StartDate, period.EndDate)
			if err != nil {
				return fmt.Errorf("accounting: aggregate analysis centers: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []AccountBalance{}
	}
	if includeBreakdown {
		nest(rows, centers)
	}
	return rows, nil
}

func nest(rows []AccountBalance, centers []CenterTotal) {
	index := make(map[int64]int, len(rows))
	for i := range rows {
		index[rows[i].AccountID] = i
		rows[i].Centers = []CenterBalance{}
	}
	for _, c := range centers {
		if i, ok := index[c.AccountID]; ok {
			rows[i].Centers = append(rows[i].Centers, c.CenterBalance)
		}
	}
}
