package accounts

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Validator confirms that referenced accounts exist for a company.
type Validator struct {
	lookup Lookup
}

func NewValidator(lookup Lookup) *Validator {
	return &Validator{lookup: lookup}
}

// EnsureExist fails with *shared.AccountsNotFoundError listing every id that
// is absent for companyID. Duplicates in ids are ignored.
func (v *Validator) EnsureExist(ctx context.Context, companyID int64, ids []int64) error {
	distinct := Distinct(ids)
	if len(distinct) == 0 {
		return nil
	}
	found, err := v.lookup.ExistingIDs(ctx, companyID, distinct)
	if err != nil {
		return fmt.Errorf("accounting: lookup accounts: %w", err)
	}
	present := make(map[int64]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	var missing []int64
	for _, id := range distinct {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &shared.AccountsNotFoundError{CompanyID: companyID, IDs: missing}
	}
	return nil
}

// Distinct returns the unique ids in ascending order.
func Distinct(ids []int64) []int64 {
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
