package periods

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type memState struct {
	periods  map[int64]Period
	journals map[int64][]string // period id -> statuses
	audits   []internalShared.AuditLog
	nextID   int64
}

func (s memState) clone() memState {
	out := memState{periods: map[int64]Period{}, journals: map[int64][]string{}, nextID: s.nextID}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.journals {
		out.journals[k] = append([]string(nil), v...)
	}
	out.audits = append(out.audits, s.audits...)
	return out
}

type memRepo struct {
	companies map[int64]bool
	state     memState
	failAudit bool
}

func newMemRepo(companies ...int64) *memRepo {
	r := &memRepo{companies: map[int64]bool{}, state: memState{periods: map[int64]Period{}, journals: map[int64][]string{}}}
	for _, c := range companies {
		r.companies[c] = true
	}
	return r
}

func (r *memRepo) Get(ctx context.Context, id int64) (Period, error) {
	p, ok := r.state.periods[id]
	if !ok {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (r *memRepo) ListByCompany(ctx context.Context, companyID int64) ([]Period, error) {
	var out []Period
	for id := int64(1); id <= r.state.nextID; id++ {
		if p, ok := r.state.periods[id]; ok && p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.state.clone()
	if err := fn(ctx, &memTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

type memTx struct{ repo *memRepo }

func (t *memTx) LockCompany(ctx context.Context, companyID int64) error {
	if !t.repo.companies[companyID] {
		return shared.ErrCompanyNotFound
	}
	return nil
}

func (t *memTx) FindOverlapping(ctx context.Context, companyID int64, start, end time.Time) (Period, bool, error) {
	for _, p := range t.repo.state.periods {
		if p.CompanyID == companyID && p.Overlaps(start, end) {
			return p, true, nil
		}
	}
	return Period{}, false, nil
}

func (t *memTx) Insert(ctx context.Context, in CreateInput) (Period, error) {
	t.repo.state.nextID++
	p := Period{ID: t.repo.state.nextID, CompanyID: in.CompanyID, Code: in.Code, StartDate: in.StartDate, EndDate: in.EndDate}
	t.repo.state.periods[p.ID] = p
	return p, nil
}

func (t *memTx) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return t.repo.Get(ctx, id)
}

func (t *memTx) CountJournals(ctx context.Context, periodID int64, draftOnly bool) (int, error) {
	n := 0
	for _, status := range t.repo.state.journals[periodID] {
		if !draftOnly || status == "DRAFT" {
			n++
		}
	}
	return n, nil
}

func (t *memTx) HasLaterClosed(ctx context.Context, p Period) (bool, error) {
	for _, other := range t.repo.state.periods {
		if other.CompanyID == p.CompanyID && other.ID != p.ID && other.StartDate.After(p.EndDate) && other.IsClosed {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SetClosed(ctx context.Context, id int64, closed bool, actorID int64, at time.Time) (Period, error) {
	p := t.repo.state.periods[id]
	p.IsClosed = closed
	p.ClosedAt, p.ClosedBy = nil, nil
	if closed {
		p.ClosedAt = &at
		p.ClosedBy = &actorID
	}
	t.repo.state.periods[id] = p
	return p, nil
}

func (t *memTx) Delete(ctx context.Context, id int64) error {
	delete(t.repo.state.periods, id)
	return nil
}

func (t *memTx) Audit(ctx context.Context, log internalShared.AuditLog) error {
	if t.repo.failAudit {
		return errors.New("audit sink unavailable")
	}
	t.repo.state.audits = append(t.repo.state.audits, log)
	return nil
}

type recordingInvalidator struct{ companies []int64 }

func (r *recordingInvalidator) Invalidate(ctx context.Context, companyID int64) error {
	r.companies = append(r.companies, companyID)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func month(companyID int64, m time.Month) CreateInput {
	start := day(2024, m, 1)
	return CreateInput{
		CompanyID: companyID,
		Code:      fmt.Sprintf("2024-%02d", int(m)),
		StartDate: start,
		EndDate:   start.AddDate(0, 1, -1),
		ActorID:   42,
	}
}

func newService(repo *memRepo) *Service {
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return day(2024, time.March, 5) })
	return svc
}

func TestCreateRejectsOverlapAndAcceptsAdjacent(t *testing.T) {
	repo := newMemRepo(1, 2)
	svc := newService(repo)
	ctx := context.Background()

	jan, err := svc.Create(ctx, month(1, time.January))
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{CompanyID: 1, StartDate: day(2024, time.January, 20), EndDate: day(2024, time.February, 10)})
	var overlap *shared.PeriodOverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, jan.ID, overlap.ExistingPeriodID)
	assert.ErrorIs(t, err, shared.ErrPeriodOverlap)

	_, err = svc.Create(ctx, month(1, time.February))
	require.NoError(t, err)

	// same range for another tenant is independent
	_, err = svc.Create(ctx, month(2, time.January))
	require.NoError(t, err)

	assert.Len(t, repo.state.audits, 3)
	assert.Equal(t, "period.create", repo.state.audits[0].Action)
}

func TestCreateValidatesRangeAndCompany(t *testing.T) {
	svc := newService(newMemRepo(1))
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{CompanyID: 1, StartDate: day(2024, 1, 31), EndDate: day(2024, 1, 1)})
	assert.ErrorIs(t, err, shared.ErrInvalidRange)

	_, err = svc.Create(ctx, CreateInput{CompanyID: 1, StartDate: day(2024, 1, 1), EndDate: day(2024, 1, 1)})
	assert.ErrorIs(t, err, shared.ErrInvalidRange)

	_, err = svc.Create(ctx, month(9, time.January))
	assert.ErrorIs(t, err, shared.ErrCompanyNotFound)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	_, err = svc.Create(ctx, CreateInput{StartDate: day(2024, 1, 1), EndDate: day(2024, 1, 2)})
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestCloseBlockedByDraftJournals(t *testing.T) {
	repo := newMemRepo(1)
	svc := newService(repo)
	inv := &recordingInvalidator{}
	svc.WithInvalidator(inv)
	ctx := context.Background()

	p, err := svc.Create(ctx, month(1, time.January))
	require.NoError(t, err)
	repo.state.journals[p.ID] = []string{"POSTED", "DRAFT"}

	_, err = svc.Close(ctx, TransitionInput{PeriodID: p.ID, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrDraftJournalsExist)
	assert.Contains(t, err.Error(), "draft")
	assert.False(t, repo.state.periods[p.ID].IsClosed)

	repo.state.journals[p.ID] = []string{"POSTED", "POSTED"}
	closed, err := svc.Close(ctx, TransitionInput{PeriodID: p.ID, ActorID: 7})
	require.NoError(t, err)
	assert.True(t, closed.IsClosed)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, int64(7), *closed.ClosedBy)
	assert.Equal(t, []int64{1}, inv.companies)

	_, err = svc.Close(ctx, TransitionInput{PeriodID: p.ID, ActorID: 7})
	assert.ErrorIs(t, err, shared.ErrPeriodAlreadyClosed)
}

func TestReopenRequiresReverseChronologicalOrder(t *testing.T) {
	repo := newMemRepo(1)
	svc := newService(repo)
	ctx := context.Background()

	jan, err := svc.Create(ctx, month(1, time.January))
	require.NoError(t, err)
	feb, err := svc.Create(ctx, month(1, time.February))
	require.NoError(t, err)

	_, err = svc.Reopen(ctx, TransitionInput{PeriodID: jan.ID})
	require.ErrorIs(t, err, shared.ErrPeriodNotClosed)

	for _, id := range []int64{jan.ID, feb.ID} {
		_, err := svc.Close(ctx, TransitionInput{PeriodID: id})
		require.NoError(t, err)
	}

	_, err = svc.Reopen(ctx, TransitionInput{PeriodID: jan.ID})
	require.ErrorIs(t, err, shared.ErrLaterPeriodClosed)

	_, err = svc.Reopen(ctx, TransitionInput{PeriodID: feb.ID})
	require.NoError(t, err)
	reopened, err := svc.Reopen(ctx, TransitionInput{PeriodID: jan.ID})
	require.NoError(t, err)
	assert.False(t, reopened.IsClosed)
	assert.Nil(t, reopened.ClosedAt)
}

func TestDeleteRules(t *testing.T) {
	repo := newMemRepo(1)
	svc := newService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, month(1, time.January))
	require.NoError(t, err)

	repo.state.journals[p.ID] = []string{"POSTED"}
	err = svc.Delete(ctx, TransitionInput{PeriodID: p.ID})
	require.ErrorIs(t, err, shared.ErrPeriodInUse)

	_, err = svc.Close(ctx, TransitionInput{PeriodID: p.ID})
	require.NoError(t, err)
	err = svc.Delete(ctx, TransitionInput{PeriodID: p.ID})
	require.ErrorIs(t, err, shared.ErrCannotDeleteClosedPeriod)

	_, err = svc.Reopen(ctx, TransitionInput{PeriodID: p.ID})
	require.NoError(t, err)
	delete(repo.state.journals, p.ID)
	require.NoError(t, svc.Delete(ctx, TransitionInput{PeriodID: p.ID}))

	_, err = svc.GetByID(ctx, p.ID, 0)
	assert.ErrorIs(t, err, shared.ErrPeriodNotFound)
	assert.Equal(t, "period.delete", repo.state.audits[len(repo.state.audits)-1].Action)
}

func TestTenantScopeHidesForeignPeriods(t *testing.T) {
	repo := newMemRepo(1, 2)
	svc := newService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, month(1, time.January))
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, p.ID, 2)
	assert.ErrorIs(t, err, shared.ErrPeriodNotFound)
	_, err = svc.Close(ctx, TransitionInput{PeriodID: p.ID, CompanyID: 2})
	assert.ErrorIs(t, err, shared.ErrPeriodNotFound)

	got, err := svc.GetByID(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01", got.Code)
}

func TestAuditFailureRollsBackTransition(t *testing.T) {
	repo := newMemRepo(1)
	svc := newService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, month(1, time.January))
	require.NoError(t, err)

	repo.failAudit = true
	_, err = svc.Close(ctx, TransitionInput{PeriodID: p.ID})
	require.Error(t, err)
	assert.Equal(t, shared.KindInternal, shared.KindOf(err))
	assert.False(t, repo.state.periods[p.ID].IsClosed)
	assert.Len(t, repo.state.audits, 1)
}

func TestListByCompanyOrdersByStart(t *testing.T) {
	repo := newMemRepo(1)
	svc := newService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, month(1, time.January))
	require.NoError(t, err)
	_, err = svc.Create(ctx, month(1, time.February))
	require.NoError(t, err)

	list, err := svc.ListByCompany(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].StartDate.Before(list[1].StartDate))

	_, err = svc.ListByCompany(ctx, 0)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}
