package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type stubPeriods map[int64]periods.Period

func (s stubPeriods) GetByID(ctx context.Context, id, companyID int64) (periods.Period, error) {
	p, ok := s[id]
	if !ok || (companyID != 0 && p.CompanyID != companyID) {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

type mockRepo struct {
	mu          sync.Mutex
	accounts    []AccountBalance
	centers     []CenterTotal
	err         error
	accountCall int
	centerCall  int
	from, to    time.Time
}

func (m *mockRepo) AccountTotals(ctx context.Context, companyID int64, from, to time.Time) ([]AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountCall++
	m.from, m.to = from, to
	out := append([]AccountBalance(nil), m.accounts...)
	return out, m.err
}

func (m *mockRepo) CenterTotals(ctx context.Context, companyID int64, from, to time.Time) ([]CenterTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.centerCall++
	return m.centers, nil
}

var january = periods.Period{
	ID:        1,
	CompanyID: 7,
	Code:      "2024-01",
	StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	EndDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
}

func scenarioRepo() *mockRepo {
	return &mockRepo{
		accounts: []AccountBalance{
			{AccountID: 10, Code: "1000", Name: "Cash", Category: "ASSET", TotalDebit: d("100"), TotalCredit: d("0")},
			{AccountID: 20, Code: "4000", Name: "Revenue", Category: "REVENUE", TotalDebit: d("0"), TotalCredit: d("100")},
		},
		centers: []CenterTotal{
			{AccountID: 20, CenterBalance: CenterBalance{AnalysisCenterID: 3, Code: "NORTH", TotalDebit: d("0"), TotalCredit: d("60")}},
		},
	}
}

func newTestService(t *testing.T, repo Repository) (*Service, *Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(stubPeriods{1: january}, repo, cache, nil), cache, mr
}

func TestTrialBalanceScenario(t *testing.T) {
	repo := scenarioRepo()
	svc, _, _ := newTestService(t, repo)

	rows, err := svc.GetTrialBalance(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cash", rows[0].Name)
	assert.True(t, rows[0].TotalDebit.Equal(d("100")))
	assert.True(t, rows[0].TotalCredit.IsZero())
	assert.True(t, rows[1].TotalCredit.Equal(d("100")))
	assert.True(t, Summarize(rows).Balanced())

	assert.Equal(t, january.StartDate, repo.from)
	assert.Equal(t, january.EndDate, repo.to)
	assert.Zero(t, repo.centerCall)
}

func TestTrialBalanceCachedUntilInvalidated(t *testing.T) {
	repo := scenarioRepo()
	svc, cache, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.GetTrialBalance(ctx, 7, 1)
	require.NoError(t, err)
	cached, err := svc.GetTrialBalance(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.accountCall)
	assert.True(t, cached[0].TotalDebit.Equal(d("100")))

	require.NoError(t, cache.Invalidate(ctx, 7))
	_, err = svc.GetTrialBalance(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.accountCall)
}

func TestReconcileBypassesCache(t *testing.T) {
	repo := scenarioRepo()
	svc, _, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.GetTrialBalance(ctx, 7, 1)
	require.NoError(t, err)

	repo.mu.Lock()
	repo.accounts[1].TotalCredit = d("90")
	repo.mu.Unlock()

	stale, err := svc.Summary(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, stale.Balanced())

	fresh, err := svc.Reconcile(ctx, 7, 1)
	require.NoError(t, err)
	assert.False(t, fresh.Balanced())
	assert.True(t, fresh.TotalCredit.Equal(d("90")))
	assert.Equal(t, 2, repo.accountCall)

	_, err = svc.Reconcile(ctx, 7, 99)
	assert.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestTrialBalanceBreakdownNestsCenters(t *testing.T) {
	repo := scenarioRepo()
	svc, _, _ := newTestService(t, repo)

	rows, err := svc.GetTrialBalanceWithAnalysisCenters(context.Background(), 7, 1, true)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Empty(t, rows[0].Centers)
	require.Len(t, rows[1].Centers, 1)
	assert.Equal(t, "NORTH", rows[1].Centers[0].Code)
	assert.True(t, rows[1].Centers[0].TotalCredit.Equal(d("60")))
	// account total still includes lines without a center
	assert.True(t, rows[1].TotalCredit.Equal(d("100")))
	assert.Equal(t, 1, repo.centerCall)
}

func TestTrialBalanceUnknownOrForeignPeriod(t *testing.T) {
	svc, _, _ := newTestService(t, scenarioRepo())
	ctx := context.Background()

	_, err := svc.GetTrialBalance(ctx, 7, 99)
	assert.ErrorIs(t, err, shared.ErrPeriodNotFound)
	_, err = svc.GetTrialBalance(ctx, 8, 1)
	assert.ErrorIs(t, err, shared.ErrPeriodNotFound)
	_, err = svc.GetTrialBalance(ctx, 0, 1)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestTrialBalanceSurvivesCacheOutage(t *testing.T) {
	repo := scenarioRepo()
	svc, _, mr := newTestService(t, repo)
	mr.Close()

	rows, err := svc.GetTrialBalance(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTrialBalancePropagatesStorageFailure(t *testing.T) {
	repo := scenarioRepo()
	repo.err = errors.New("relation does not exist")
	svc, _, _ := newTestService(t, repo)

	_, err := svc.GetTrialBalance(context.Background(), 7, 1)
	require.Error(t, err)
	assert.Equal(t, shared.KindInternal, shared.KindOf(err))
}

func TestDerivedStatements(t *testing.T) {
	svc, _, _ := newTestService(t, scenarioRepo())
	ctx := context.Background()

	pl, err := svc.ProfitAndLoss(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, pl.NetIncome.Equal(d("100")))

	bs, err := svc.BalanceSheet(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, bs.Balanced())

	sum, err := svc.Summary(ctx, 7, 1)
	require.NoError(t, err)
	assert.Len(t, sum.Categories, 2)
}

func TestEmptyPeriodReturnsNoRows(t *testing.T) {
	svc, _, _ := newTestService(t, &mockRepo{})
	rows, err := svc.GetTrialBalance(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

type blockingRepo struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRepo) AccountTotals(ctx context.Context, companyID int64, from, to time.Time) ([]AccountBalance, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []AccountBalance{{AccountID: 10, Code: "1000", Category: "ASSET", TotalDebit: d("5"), TotalCredit: d("5")}}, nil
}

func (b *blockingRepo) CenterTotals(context.Context, int64, time.Time, time.Time) ([]CenterTotal, error) {
	return nil, nil
}

func TestTrialBalanceSharedLoadOutlivesFirstCaller(t *testing.T) {
	repo := &blockingRepo{started: make(chan struct{}), release: make(chan struct{})}
	svc, _, _ := newTestService(t, repo)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.GetTrialBalance(ctxA, 7, 1)
		errA <- err
	}()
	select {
	case <-repo.started:
	case <-time.After(5 * time.Second):
		t.Fatal("load never started")
	}

	type outcome struct {
		rows []AccountBalance
		err  error
	}
	resB := make(chan outcome, 1)
	go func() {
		rows, err := svc.GetTrialBalance(context.Background(), 7, 1)
		resB <- outcome{rows, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(repo.release)
	select {
	case out := <-resB:
		require.NoError(t, out.err)
		require.Len(t, out.rows, 1)
		assert.Equal(t, "1000", out.rows[0].Code)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never returned")
	}
}
