package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type stubLookup struct {
	known map[int64]int64
	err   error
	calls [][]int64
}

func (s *stubLookup) ExistingIDs(ctx context.Context, companyID int64, ids []int64) ([]int64, error) {
	s.calls = append(s.calls, ids)
	if s.err != nil {
		return nil, s.err
	}
	var out []int64
	for _, id := range ids {
		if owner, ok := s.known[id]; ok && owner == companyID {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestEnsureExistReportsAllMissing(t *testing.T) {
	lookup := &stubLookup{known: map[int64]int64{1: 7, 2: 7, 9: 8}}
	v := NewValidator(lookup)

	err := v.EnsureExist(context.Background(), 7, []int64{5, 1, 9, 2, 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAccountsNotFound))

	var notFound *shared.AccountsNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, []int64{5, 9}, notFound.IDs)
	assert.Equal(t, shared.KindBusinessRule, shared.KindOf(err))
}

func TestEnsureExistDeduplicatesLookup(t *testing.T) {
	lookup := &stubLookup{known: map[int64]int64{1: 7, 2: 7}}
	v := NewValidator(lookup)

	require.NoError(t, v.EnsureExist(context.Background(), 7, []int64{2, 1, 2, 1}))
	require.Len(t, lookup.calls, 1)
	assert.Equal(t, []int64{1, 2}, lookup.calls[0])
}

func TestEnsureExistEmptySkipsLookup(t *testing.T) {
	lookup := &stubLookup{}
	require.NoError(t, NewValidator(lookup).EnsureExist(context.Background(), 7, nil))
	assert.Empty(t, lookup.calls)
}

func TestEnsureExistPropagatesLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	err := NewValidator(&stubLookup{err: boom}).EnsureExist(context.Background(), 7, []int64{1})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, shared.KindInternal, shared.KindOf(err))
}
