package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
)

type journalLineResponse struct {
	LineNo           int             `json:"line_no"`
	AccountID        int64           `json:"account_id"`
	AnalysisCenterID *int64          `json:"analysis_center_id,omitempty"`
	Debit            decimal.Decimal `json:"debit"`
	Credit           decimal.Decimal `json:"credit"`
	Narrative        string          `json:"narrative,omitempty"`
}

type sourceResponse struct {
	Module string    `json:"module"`
	ID     uuid.UUID `json:"id"`
}

type journalResponse struct {
	ID          int64                 `json:"id"`
	CompanyID   int64                 `json:"company_id"`
	PeriodID    int64                 `json:"period_id"`
	Date        time.Time             `json:"date"`
	Description string                `json:"description"`
	Reference   string                `json:"reference,omitempty"`
	Currency    string                `json:"currency"`
	Status      string                `json:"status"`
	CreatedBy   int64                 `json:"created_by"`
	PostedBy    *int64                `json:"posted_by,omitempty"`
	PostedAt    *time.Time            `json:"posted_at,omitempty"`
	Source      *sourceResponse       `json:"source,omitempty"`
	TotalDebit  decimal.Decimal       `json:"total_debit"`
	TotalCredit decimal.Decimal       `json:"total_credit"`
	Lines       []journalLineResponse `json:"lines"`
}

func toJournalResponse(e journals.JournalEntry) journalResponse {
	debit, credit := e.Totals()
	out := journalResponse{
		ID:          e.ID,
		CompanyID:   e.CompanyID,
		PeriodID:    e.PeriodID,
		Date:        e.Date,
		Description: e.Description,
		Reference:   e.Reference,
		Currency:    e.Currency,
		Status:      string(e.Status),
		CreatedBy:   e.CreatedBy,
		PostedBy:    e.PostedBy,
		PostedAt:    e.PostedAt,
		TotalDebit:  debit,
		TotalCredit: credit,
		Lines:       make([]journalLineResponse, 0, len(e.Lines)),
	}
	if e.Source != nil {
		out.Source = &sourceResponse{Module: e.Source.Module, ID: e.Source.ID}
	}
	for _, l := range e.Lines {
		out.Lines = append(out.Lines, journalLineResponse{
			LineNo:           l.LineNo,
			AccountID:        l.AccountID,
			AnalysisCenterID: l.AnalysisCenterID,
			Debit:            l.Debit,
			Credit:           l.Credit,
			Narrative:        l.Narrative,
		})
	}
	return out
}

type periodResponse struct {
	ID        int64      `json:"id"`
	CompanyID int64      `json:"company_id"`
	Code      string     `json:"code"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	IsClosed  bool       `json:"is_closed"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  *int64     `json:"closed_by,omitempty"`
}

func toPeriodResponse(p periods.Period) periodResponse {
	return periodResponse{
		ID:        p.ID,
		CompanyID: p.CompanyID,
		Code:      p.Code,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		IsClosed:  p.IsClosed,
		ClosedAt:  p.ClosedAt,
		ClosedBy:  p.ClosedBy,
	}
}
