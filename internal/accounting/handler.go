package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	headerActorID   = "X-Actor-ID"
	headerCompanyID = "X-Company-ID"
)

// BatchRoute is the synchronous batch endpoint. It runs for up to the batch
// timeout rather than the request timeout.
const BatchRoute = "/accounting/journals/batch"

// BatchResponseGrace is the time allowed past the batch timeout to write the
// result.
const BatchResponseGrace = 10 * time.Second

// Handler wires ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	ledger   *Ledger
	enqueuer BatchEnqueuer
	validate *validator.Validate
}

// NewHandler builds a Handler instance. enqueuer may be nil, which disables
// asynchronous batches.
func NewHandler(logger *slog.Logger, ledger *Ledger, enqueuer BatchEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, ledger: ledger, enqueuer: enqueuer, validate: validator.New()}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting", func(r chi.Router) {
		r.Use(h.requirePrincipal)
		r.Route("/journals", func(r chi.Router) {
			r.Post("/", h.handleCreateJournal)
			r.Post("/batch", h.handlePostBatch)
			r.Get("/by-source", h.handleFindBySource)
			r.Get("/{id}", h.handleGetJournal)
			r.Post("/{id}/post", h.handlePostJournal)
		})
		r.Route("/periods", func(r chi.Router) {
			r.Post("/", h.handleCreatePeriod)
			r.Get("/", h.handleListPeriods)
			r.Get("/{id}", h.handleGetPeriod)
			r.Delete("/{id}", h.handleDeletePeriod)
			r.Post("/{id}/close", h.handleClosePeriod)
			r.Post("/{id}/reopen", h.handleReopenPeriod)
			r.Get("/{id}/trial-balance", h.handleTrialBalance)
			r.Get("/{id}/trial-balance/summary", h.handleTrialBalanceSummary)
			r.Get("/{id}/profit-loss", h.handleProfitAndLoss)
			r.Get("/{id}/balance-sheet", h.handleBalanceSheet)
		})
	})
}

func (h *Handler) requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, errActor := strconv.ParseInt(r.Header.Get(headerActorID), 10, 64)
		companyID, errCompany := strconv.ParseInt(r.Header.Get(headerCompanyID), 10, 64)
		if errActor != nil || errCompany != nil || actorID <= 0 || companyID <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: %s and %s headers required", httpx.ErrUnauthorized, headerActorID, headerCompanyID))
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{ActorID: actorID, CompanyID: companyID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type lineRequest struct {
	AccountID        int64           `json:"account_id" validate:"required,gt=0"`
	AnalysisCenterID *int64          `json:"analysis_center_id,omitempty" validate:"omitempty,gt=0"`
	Debit            decimal.Decimal `json:"debit"`
	Credit           decimal.Decimal `json:"credit"`
	Narrative        string          `json:"narrative" validate:"max=500"`
}

type sourceRequest struct {
	Module string    `json:"module" validate:"required,max=50"`
	ID     uuid.UUID `json:"id"`
}

type createJournalRequest struct {
	PeriodID    int64          `json:"period_id" validate:"required,gt=0"`
	Date        string         `json:"date" validate:"required"`
	Description string         `json:"description" validate:"max=500"`
	Reference   string         `json:"reference" validate:"max=100"`
	Currency    string         `json:"currency" validate:"required,len=3"`
	Source      *sourceRequest `json:"source,omitempty"`
	Lines       []lineRequest  `json:"lines" validate:"required,min=1,dive"`
}

type batchRequest struct {
	JournalIDs []int64 `json:"journal_ids" validate:"required,min=1,dive,gt=0"`
}

type createPeriodRequest struct {
	Code      string `json:"code" validate:"max=32"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

func (h *Handler) handleCreateJournal(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req createJournalRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := parseTime(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := journals.CreateDraftInput{
		CompanyID:   p.CompanyID,
		PeriodID:    req.PeriodID,
		Date:        date,
		Description: req.Description,
		Reference:   req.Reference,
		Currency:    req.Currency,
		ActorID:     p.ActorID,
	}
	if req.Source != nil {
		in.Source = &journals.SourceRef{Module: req.Source.Module, ID: req.Source.ID}
	}
	for i, line := range req.Lines {
		if !journals.FitsScale(line.Debit) || !journals.FitsScale(line.Credit) {
			httpx.RespondError(w, fmt.Errorf("%w: lines[%d] amount has more than %d decimal places", httpx.ErrValidation, i, journals.AmountScale))
			return
		}
		in.Lines = append(in.Lines, journals.LineInput{
			AccountID:        line.AccountID,
			AnalysisCenterID: line.AnalysisCenterID,
			Debit:            line.Debit,
			Credit:           line.Credit,
			Narrative:        line.Narrative,
		})
	}
	entry, err := h.ledger.CreateJournal(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalResponse(entry))
}

func (h *Handler) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.ledger.GetJournalByID(r.Context(), id, principal(r).CompanyID)
	if err != nil {
		h.fail(w, r, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

func (h *Handler) handleFindBySource(w http.ResponseWriter, r *http.Request) {
	module := strings.TrimSpace(r.URL.Query().Get("module"))
	ref, err := uuid.Parse(r.URL.Query().Get("id"))
	if module == "" || err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: module and id query parameters required", httpx.ErrValidation))
		return
	}
	entry, err := h.ledger.FindJournalBySource(r.Context(), module, ref, principal(r).CompanyID)
	if err != nil {
		h.fail(w, r, "find journal by source", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

func (h *Handler) handlePostJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p := principal(r)
	entry, err := h.ledger.PostJournal(r.Context(), journals.PostInput{JournalID: id, CompanyID: p.CompanyID, ActorID: p.ActorID})
	if err != nil {
		h.fail(w, r, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

func (h *Handler) handlePostBatch(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req batchRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := journals.BatchInput{JournalIDs: journals.UniqueIDs(req.JournalIDs), CompanyID: p.CompanyID, ActorID: p.ActorID}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := h.ledger.ValidateBatch(in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if h.enqueuer == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "asynchronous batches are disabled")
			return
		}
		taskID, err := h.enqueuer.EnqueuePostBatch(r.Context(), in, r.Header.Get("Idempotency-Key"))
		if err != nil {
			h.fail(w, r, "enqueue batch", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": taskID, "journal_count": len(in.JournalIDs)})
		return
	}

	result, err := h.ledger.PostBatch(r.Context(), in)
	if err != nil {
		h.logger.Error("post batch", slog.Int("posted", result.PostedCount), slog.Any("error", err))
		if httpx.StatusOf(err) == http.StatusInternalServerError {
			httpx.JSON(w, http.StatusInternalServerError, map[string]any{"result": result, "error": "batch aborted"})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req createPeriodRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, err := parseTime(req.StartDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := parseEndTime(req.EndDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.ledger.CreatePeriod(r.Context(), periods.CreateInput{
		CompanyID: p.CompanyID,
		Code:      req.Code,
		StartDate: start,
		EndDate:   end,
		ActorID:   p.ActorID,
	})
	if err != nil {
		h.fail(w, r, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.GetPeriodsByCompany(r.Context(), principal(r).CompanyID)
	if err != nil {
		h.fail(w, r, "list periods", err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.ledger.GetPeriodByID(r.Context(), id, principal(r).CompanyID)
	if err != nil {
		h.fail(w, r, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) handleClosePeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "close period", h.ledger.ClosePeriod)
}

func (h *Handler) handleReopenPeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reopen period", h.ledger.ReopenPeriod)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, periods.TransitionInput) (periods.Period, error)) {
	in, err := transitionInput(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := fn(r.Context(), in)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) handleDeletePeriod(w http.ResponseWriter, r *http.Request) {
	in, err := transitionInput(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.ledger.DeletePeriod(r.Context(), in); err != nil {
		h.fail(w, r, "delete period", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	breakdown, _ := strconv.ParseBool(r.URL.Query().Get("breakdown"))
	rows, err := h.ledger.GetTrialBalanceWithAnalysisCenters(r.Context(), principal(r).CompanyID, id, breakdown)
	if err != nil {
		h.fail(w, r, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleTrialBalanceSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.ledger.Reports.Summary(r.Context(), principal(r).CompanyID, id)
	if err != nil {
		h.fail(w, r, "trial balance summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"summary": summary, "balanced": summary.Balanced()})
}

func (h *Handler) handleProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.ledger.Reports.ProfitAndLoss(r.Context(), principal(r).CompanyID, id)
	if err != nil {
		h.fail(w, r, "profit and loss", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.ledger.Reports.BalanceSheet(r.Context(), principal(r).CompanyID, id)
	if err != nil {
		h.fail(w, r, "balance sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"report": report, "balanced": report.Balanced()})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: malformed body: %v", httpx.ErrValidation, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func principal(r *http.Request) shared.Principal {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", httpx.ErrValidation, chi.URLParam(r, "id"))
	}
	return id, nil
}

func transitionInput(r *http.Request) (periods.TransitionInput, error) {
	id, err := pathID(r)
	if err != nil {
		return periods.TransitionInput{}, err
	}
	p := principal(r)
	return periods.TransitionInput{PeriodID: id, CompanyID: p.CompanyID, ActorID: p.ActorID}, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates, read as UTC midnight.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", httpx.ErrValidation, raw)
}

// parseEndTime reads a plain date as the last microsecond of that day, the
// finest instant Postgres stores, so the whole day belongs to the range.
func parseEndTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw)); err == nil {
		return t.Add(24*time.Hour - time.Microsecond), nil
	}
	return parseTime(raw)
}
