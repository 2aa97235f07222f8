package shared

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Kind classifies ledger errors for callers that branch on category.
type Kind int

const (
	// KindInternal covers storage failures, timeouts, and anything unclassified.
	KindInternal Kind = iota
	// KindValidation marks structurally invalid caller input.
	KindValidation
	// KindBusinessRule marks an expected, caller-recoverable rule breach.
	KindBusinessRule
	// KindNotFound marks a missing entity or one outside the caller's company.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Validation errors.
var (
	// ErrValidation is the parent of all input validation failures.
	ErrValidation = errors.New("accounting: invalid input")
	// ErrNoLines indicates a journal without lines.
	ErrNoLines = fmt.Errorf("%w: journal requires at least one line", ErrValidation)
	// ErrEmptyBatch indicates PostBatch received no ids.
	ErrEmptyBatch = fmt.Errorf("%w: batch requires at least one journal id", ErrValidation)
	// ErrBatchTooLarge indicates PostBatch exceeded its size bound.
	ErrBatchTooLarge = fmt.Errorf("%w: batch exceeds maximum size", ErrValidation)
)

// Business-rule errors.
var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrPeriodClosed indicates the journal's period is closed.
	ErrPeriodClosed = errors.New("accounting: period is closed")
	// ErrAccountsNotFound indicates referenced accounts are missing for the company.
	ErrAccountsNotFound = errors.New("accounting: accounts not found")
	// ErrInvalidAnalysisCenters indicates referenced centers are missing, inactive, or foreign.
	ErrInvalidAnalysisCenters = errors.New("accounting: invalid analysis centers")
	// ErrAlreadyPosted indicates the journal is already posted.
	ErrAlreadyPosted = errors.New("accounting: journal already posted")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrInvalidRange indicates a period whose end is not after its start.
	ErrInvalidRange = errors.New("accounting: period end must be after start")
	// ErrPeriodOverlap indicates a period range intersecting another period of the company.
	ErrPeriodOverlap = errors.New("accounting: period overlaps existing period")
	// ErrPeriodAlreadyClosed indicates Close on a closed period.
	ErrPeriodAlreadyClosed = errors.New("accounting: period already closed")
	// ErrPeriodNotClosed indicates Reopen on an open period.
	ErrPeriodNotClosed = errors.New("accounting: period is not closed")
	// ErrDraftJournalsExist indicates draft journals block a close.
	ErrDraftJournalsExist = errors.New("accounting: draft journals remain in period")
	// ErrLaterPeriodClosed indicates a later closed period blocks a reopen.
	ErrLaterPeriodClosed = errors.New("accounting: a later period is closed")
	// ErrCannotDeleteClosedPeriod indicates Delete on a closed period.
	ErrCannotDeleteClosedPeriod = errors.New("accounting: cannot delete closed period")
	// ErrPeriodInUse indicates journals still reference the period.
	ErrPeriodInUse = errors.New("accounting: period referenced by journals")
)

// Not-found errors.
var (
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrPeriodNotFound indicates missing period.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrCompanyNotFound indicates missing company.
	ErrCompanyNotFound = errors.New("accounting: company not found")
)

// ErrSourceConflict is raised by repositories when the source link exists.
var ErrSourceConflict = errors.New("accounting: source link conflict")

var businessRules = []error{
	ErrUnbalanced, ErrPeriodClosed, ErrAccountsNotFound, ErrInvalidAnalysisCenters,
	ErrAlreadyPosted, ErrSourceAlreadyLinked, ErrInvalidRange, ErrPeriodOverlap,
	ErrPeriodAlreadyClosed, ErrPeriodNotClosed, ErrDraftJournalsExist, ErrLaterPeriodClosed,
	ErrCannotDeleteClosedPeriod, ErrPeriodInUse,
}

var notFound = []error{ErrJournalNotFound, ErrPeriodNotFound, ErrCompanyNotFound}

// KindOf classifies err. Nil reports KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if errors.Is(err, db.ErrTxTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindInternal
	}
	if errors.Is(err, ErrValidation) {
		return KindValidation
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return KindNotFound
		}
	}
	for _, target := range businessRules {
		if errors.Is(err, target) {
			return KindBusinessRule
		}
	}
	return KindInternal
}

// Expected reports whether err is a caller-recoverable condition rather than
// an infrastructure failure.
func Expected(err error) bool {
	return err != nil && KindOf(err) != KindInternal
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// AccountsNotFoundError lists every account id missing for the company.
type AccountsNotFoundError struct {
	CompanyID int64
	IDs       []int64
}

func (e *AccountsNotFoundError) Error() string {
	return fmt.Sprintf("%s for company %d: %s", ErrAccountsNotFound.Error(), e.CompanyID, joinIDs(e.IDs))
}

func (e *AccountsNotFoundError) Unwrap() error { return ErrAccountsNotFound }

// InvalidAnalysisCentersError lists every center id that is missing, inactive,
// or owned by another company.
type InvalidAnalysisCentersError struct {
	CompanyID int64
	IDs       []int64
}

func (e *InvalidAnalysisCentersError) Error() string {
	return fmt.Sprintf("%s for company %d: %s", ErrInvalidAnalysisCenters.Error(), e.CompanyID, joinIDs(e.IDs))
}

func (e *InvalidAnalysisCentersError) Unwrap() error { return ErrInvalidAnalysisCenters }

// PeriodOverlapError names the existing period that intersects the request.
type PeriodOverlapError struct {
	ExistingPeriodID int64
}

func (e *PeriodOverlapError) Error() string {
	return fmt.Sprintf("%s: %d", ErrPeriodOverlap.Error(), e.ExistingPeriodID)
}

func (e *PeriodOverlapError) Unwrap() error { return ErrPeriodOverlap }

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ", ")
}
