package centers

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Validator confirms analysis centers are active and owned by the company.
type Validator struct {
	lookup Lookup
}

func NewValidator(lookup Lookup) *Validator {
	return &Validator{lookup: lookup}
}

// EnsureUsable fails with *shared.InvalidAnalysisCentersError listing every
// id that is missing, inactive, or owned by another company.
func (v *Validator) EnsureUsable(ctx context.Context, companyID int64, ids []int64) error {
	distinct := distinct(ids)
	if len(distinct) == 0 {
		return nil
	}
	found, err := v.lookup.FindByIDs(ctx, distinct)
	if err != nil {
		return fmt.Errorf("accounting: lookup analysis centers: %w", err)
	}
	usable := make(map[int64]bool, len(found))
	for _, c := range found {
		usable[c.ID] = c.IsActive && c.CompanyID == companyID
	}
	var invalid []int64
	for _, id := range distinct {
		if !usable[id] {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return &shared.InvalidAnalysisCentersError{CompanyID: companyID, IDs: invalid}
	}
	return nil
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
