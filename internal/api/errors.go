package api

import (
	"errors"
	"net/http"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/repository"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorStatus maps a processor error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuthenticationRejected):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict, "INSUFFICIENT_FUNDS"
	case errors.Is(err, domain.ErrNoEligibleSource):
		return http.StatusConflict, "NO_ELIGIBLE_SOURCE"
	case errors.Is(err, domain.ErrInvalidSelection):
		return http.StatusUnprocessableEntity, "INVALID_SELECTION"
	case errors.Is(err, domain.ErrOperationNotSupported):
		return http.StatusConflict, "OPERATION_NOT_SUPPORTED"
	case errors.Is(err, domain.ErrMortgageSettled):
		return http.StatusConflict, "MORTGAGE_SETTLED"
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE"
	default:
		return http.StatusInternalServerError, "SERVER_ERROR"
	}
}
