package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/internal/jobs"
	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/internal/store"
)

// writeError maps domain errors onto the API error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, lifecycle.ErrGuardViolation):
		response.Error(w, http.StatusUnprocessableEntity, "GUARD_VIOLATION", err.Error(), nil)
	case errors.Is(err, jobs.ErrValidation):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "Resource already exists", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
