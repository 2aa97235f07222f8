package centers

import "time"

// Kind distinguishes cost from profit centers.
type Kind string

const (
	KindCost   Kind = "COST"
	KindProfit Kind = "PROFIT"
)

// AnalysisCenter tags journal lines for analytical breakdowns.
type AnalysisCenter struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
	Kind      Kind
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
