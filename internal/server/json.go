package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/SGman98/mafiabot/internal/mafia"
	"github.com/SGman98/mafiabot/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mafia.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, mafia.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, mafia.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mafia.ErrInvalidState), errors.Is(err, mafia.ErrNoActiveVote):
		return http.StatusConflict
	case errors.Is(err, mafia.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err with player-facing text. Unclassified
// errors are logged and hidden.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, session.Describe(err))
}
