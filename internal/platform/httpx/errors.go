// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal failures never leak their message.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, "Internal Error", "")
		return
	}
	Problem(w, status, titles[status], err.Error())
}

var titles = map[int]string{
	http.StatusBadRequest:          "Validation Failed",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusNotFound:            "Not Found",
	http.StatusConflict:            "Conflict",
	http.StatusUnprocessableEntity: "Business Rule Violation",
}

// StatusOf returns the status RespondError would write for err.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	}
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindBusinessRule:
		if conflict(err) {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// conflict marks rule breaches caused by current resource state rather than
// by the request payload.
func conflict(err error) bool {
	for _, target := range []error{
		shared.ErrAlreadyPosted,
		shared.ErrSourceAlreadyLinked,
		shared.ErrPeriodOverlap,
		shared.ErrPeriodAlreadyClosed,
		shared.ErrPeriodNotClosed,
		shared.ErrDraftJournalsExist,
		shared.ErrLaterPeriodClosed,
		shared.ErrCannotDeleteClosedPeriod,
		shared.ErrPeriodInUse,
		shared.ErrPeriodClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
