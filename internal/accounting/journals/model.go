package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
)

// SourceRef links a journal to the document that produced it. A module/ID
// pair can be linked to one journal only.
type SourceRef struct {
	Module string
	ID     uuid.UUID
}

// JournalEntry is a dated set of lines recorded against company accounts.
type JournalEntry struct {
	ID          int64
	CompanyID   int64
	PeriodID    int64
	Date        time.Time
	Description string
	Reference   string
	Currency    string
	Status      JournalStatus
	CreatedBy   int64
	PostedBy    *int64
	PostedAt    *time.Time
	Source      *SourceRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID               int64
	JournalID        int64
	LineNo           int
	AccountID        int64
	AnalysisCenterID *int64
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	Narrative        string
	CreatedAt        time.Time
}

// Totals sums debit and credit across the entry's lines.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// IsBalanced reports exact debit/credit equality.
func (e JournalEntry) IsBalanced() bool {
	debit, credit := e.Totals()
	return debit.Equal(credit)
}

// AccountIDs returns the account referenced by every line, in line order.
func (e JournalEntry) AccountIDs() []int64 {
	ids := make([]int64, 0, len(e.Lines))
	for _, line := range e.Lines {
		ids = append(ids, line.AccountID)
	}
	return ids
}

// AnalysisCenterIDs returns the centers referenced by lines that carry one.
func (e JournalEntry) AnalysisCenterIDs() []int64 {
	var ids []int64
	for _, line := range e.Lines {
		if line.AnalysisCenterID != nil {
			ids = append(ids, *line.AnalysisCenterID)
		}
	}
	return ids
}
