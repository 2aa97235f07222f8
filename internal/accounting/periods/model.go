package periods

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Period represents a company fiscal window.
type Period struct {
	ID        int64
	CompanyID int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	IsClosed  bool
	ClosedAt  *time.Time
	ClosedBy  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether [start, end] intersects the period's closed range.
func (p Period) Overlaps(start, end time.Time) bool {
	return !start.After(p.EndDate) && !end.Before(p.StartDate)
}

// Contains reports whether t falls inside the period's closed range.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// CreateInput carries the fields required to open a new period.
type CreateInput struct {
	CompanyID int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	ActorID   int64
}

// Validate checks the request shape and range before touching storage.
func (in CreateInput) Validate() error {
	if in.CompanyID <= 0 {
		return shared.Validationf("company id required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.Validationf("period start and end required")
	}
	if !in.EndDate.After(in.StartDate) {
		return shared.ErrInvalidRange
	}
	return nil
}

// TransitionInput identifies the period an actor closes, reopens, or deletes.
// A non-zero CompanyID scopes the lookup to that tenant.
type TransitionInput struct {
	PeriodID  int64
	CompanyID int64
	ActorID   int64
}

func (in TransitionInput) Validate() error {
	if in.PeriodID <= 0 {
		return shared.Validationf("period id required")
	}
	return nil
}
