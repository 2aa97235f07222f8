package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/centers"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type ledgerState struct {
	entries map[int64]JournalEntry
	sources map[SourceRef]int64
	audits  []internalShared.AuditLog
	nextID  int64
}

func (s ledgerState) clone() ledgerState {
	out := ledgerState{entries: map[int64]JournalEntry{}, sources: map[SourceRef]int64{}, nextID: s.nextID}
	for k, v := range s.entries {
		v.Lines = append([]JournalLine(nil), v.Lines...)
		out.entries[k] = v
	}
	for k, v := range s.sources {
		out.sources[k] = v
	}
	out.audits = append(out.audits, s.audits...)
	return out
}

// memStore is an in-memory Repository that restores its state when the
// unit of work fails.
type memStore struct {
	periods   map[int64]periods.Period
	accounts  map[int64]int64 // account id -> company id
	centers   map[int64]centers.AnalysisCenter
	state     ledgerState
	failAudit bool
	failPost  error
}

func newMemStore() *memStore {
	return &memStore{
		periods:  map[int64]periods.Period{},
		accounts: map[int64]int64{},
		centers:  map[int64]centers.AnalysisCenter{},
		state:    ledgerState{entries: map[int64]JournalEntry{}, sources: map[SourceRef]int64{}},
	}
}

func (m *memStore) Get(ctx context.Context, id int64) (JournalEntry, error) {
	e, ok := m.state.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (m *memStore) FindBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	id, ok := m.state.sources[SourceRef{Module: module, ID: ref}]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return m.Get(ctx, id)
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, &memTx{store: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

type memTx struct{ store *memStore }

type accountLookup map[int64]int64

func (a accountLookup) ExistingIDs(ctx context.Context, companyID int64, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if owner, ok := a[id]; ok && owner == companyID {
			out = append(out, id)
		}
	}
	return out, nil
}

type centerLookup map[int64]centers.AnalysisCenter

func (c centerLookup) FindByIDs(ctx context.Context, ids []int64) ([]centers.AnalysisCenter, error) {
	var out []centers.AnalysisCenter
	for _, id := range ids {
		if center, ok := c[id]; ok {
			out = append(out, center)
		}
	}
	return out, nil
}

func (t *memTx) Accounts() accounts.Lookup { return accountLookup(t.store.accounts) }

func (t *memTx) Centers() centers.Lookup { return centerLookup(t.store.centers) }

func (t *memTx) GetPeriodForShare(ctx context.Context, periodID int64) (periods.Period, error) {
	p, ok := t.store.periods[periodID]
	if !ok {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (t *memTx) InsertJournalEntry(ctx context.Context, in CreateDraftInput) (JournalEntry, error) {
	t.store.state.nextID++
	e := JournalEntry{
		ID:          t.store.state.nextID,
		CompanyID:   in.CompanyID,
		PeriodID:    in.PeriodID,
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		Currency:    in.Currency,
		Status:      JournalStatusDraft,
		CreatedBy:   in.ActorID,
		Source:      in.Source,
	}
	t.store.state.entries[e.ID] = e
	return e, nil
}

func (t *memTx) InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	e := t.store.state.entries[entryID]
	for idx, line := range lines {
		e.Lines = append(e.Lines, JournalLine{
			ID:               int64(idx + 1),
			JournalID:        entryID,
			LineNo:           idx + 1,
			AccountID:        line.AccountID,
			AnalysisCenterID: line.AnalysisCenterID,
			Debit:            line.Debit,
			Credit:           line.Credit,
			Narrative:        line.Narrative,
		})
	}
	t.store.state.entries[entryID] = e
	return e.Lines, nil
}

func (t *memTx) LinkSource(ctx context.Context, ref SourceRef, entryID int64) error {
	if _, ok := t.store.state.sources[ref]; ok {
		return shared.ErrSourceConflict
	}
	t.store.state.sources[ref] = entryID
	return nil
}

func (t *memTx) GetJournalForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	return t.store.Get(ctx, entryID)
}

func (t *memTx) MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error {
	if t.store.failPost != nil {
		return t.store.failPost
	}
	e := t.store.state.entries[entryID]
	if e.Status != JournalStatusDraft {
		return shared.ErrAlreadyPosted
	}
	e.Status = JournalStatusPosted
	e.PostedBy = &actorID
	e.PostedAt = &at
	t.store.state.entries[entryID] = e
	return nil
}

func (t *memTx) Audit(ctx context.Context, log internalShared.AuditLog) error {
	if t.store.failAudit {
		return errors.New("audit sink unavailable")
	}
	t.store.state.audits = append(t.store.state.audits, log)
	return nil
}
