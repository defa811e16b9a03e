// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Persistence failures intentionally return a generic retry-safe message
// without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrStateConflict):
		Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, shared.ErrDuplicateOperation):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrPersistence):
		Problem(w, http.StatusServiceUnavailable, "Temporary Failure", "the operation did not commit, retry the whole request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
