package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"taplist/internal/service"
	"taplist/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the closed set of domain failures onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrStationNotFound), errors.Is(err, store.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotInQueue),
		errors.Is(err, service.ErrStationBusy),
		errors.Is(err, service.ErrNoActiveSession),
		errors.Is(err, service.ErrInactiveStation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConflict):
		// Retries exhausted; the caller may simply try again.
		writeError(w, http.StatusServiceUnavailable, "operation lost a concurrent update race, retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
