package httpx

import (
	"errors"
	"net/http"

	"github.com/praxishq/praxis/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Package-level sentinels (invariant violations, invalid transitions)
// are wrapped around shared.ErrInvalidInput or shared.ErrConflict by
// the domain services, so the mapping here stays small.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
