package journals

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AmountScale is the number of fractional digits journal_lines stores.
const AmountScale = 4

// LineInput describes a journal line for a draft request.
type LineInput struct {
	AccountID        int64
	AnalysisCenterID *int64
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	Narrative        string
}

// CreateDraftInput groups fields required to create a draft journal entry.
type CreateDraftInput struct {
	CompanyID   int64
	PeriodID    int64
	Date        time.Time
	Description string
	Reference   string
	Currency    string
	Source      *SourceRef
	ActorID     int64
	Lines       []LineInput
}

// Validate ensures the input is well formed and balanced. Currency is
// normalised to its upper-case ISO 4217 code.
func (in *CreateDraftInput) Validate() error {
	if in.CompanyID <= 0 {
		return shared.Validationf("company id required")
	}
	if in.PeriodID <= 0 {
		return shared.Validationf("period id required")
	}
	if in.Date.IsZero() {
		return shared.Validationf("journal date required")
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(in.Currency)))
	if err != nil {
		return shared.Validationf("currency %q is not an ISO 4217 code", in.Currency)
	}
	in.Currency = unit.String()
	if in.Source != nil {
		if strings.TrimSpace(in.Source.Module) == "" {
			return shared.Validationf("source module required")
		}
		if in.Source.ID == uuid.Nil {
			return shared.Validationf("source id required")
		}
	}
	if len(in.Lines) == 0 {
		return shared.ErrNoLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID <= 0 {
			return shared.Validationf("line %d missing account", idx+1)
		}
		if line.AnalysisCenterID != nil && *line.AnalysisCenterID <= 0 {
			return shared.Validationf("line %d analysis center id must be positive", idx+1)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Validationf("line %d negative amount", idx+1)
		}
		if !FitsScale(line.Debit) || !FitsScale(line.Credit) {
			return shared.Validationf("line %d amount has more than %d decimal places", idx+1, AmountScale)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return shared.Validationf("line %d cannot be both debit and credit", idx+1)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return shared.ErrUnbalanced
	}
	return nil
}

// FitsScale reports whether d is stored without rounding. Trailing zeros
// beyond the scale are accepted.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

func (in CreateDraftInput) accountIDs() []int64 {
	ids := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		ids = append(ids, line.AccountID)
	}
	return ids
}

func (in CreateDraftInput) analysisCenterIDs() []int64 {
	var ids []int64
	for _, line := range in.Lines {
		if line.AnalysisCenterID != nil {
			ids = append(ids, *line.AnalysisCenterID)
		}
	}
	return ids
}

// PostInput identifies the draft an actor posts. A non-zero CompanyID scopes
// the lookup to that tenant.
type PostInput struct {
	JournalID int64
	CompanyID int64
	ActorID   int64
}

func (in PostInput) Validate() error {
	if in.JournalID <= 0 {
		return shared.Validationf("journal id required")
	}
	return nil
}
