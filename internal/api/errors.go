package api

import (
	"errors"
	"net/http"

	"github.com/pulse-control/ptc/internal/rewards"
	"github.com/pulse-control/ptc/internal/session"
	"github.com/pulse-control/ptc/internal/store"
)

// writeDomainError maps subsystem errors onto the response envelope.
// Unknown errors become INTERNAL without leaking detail to the caller.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
	case errors.Is(err, rewards.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Reward account not found", nil)
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", nil)
	}
}
