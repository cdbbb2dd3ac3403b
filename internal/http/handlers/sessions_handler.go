package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taplist/internal/service"
)

// SessionsHandler serves session lifecycle endpoints.
type SessionsHandler struct {
	svc    *service.SessionsService
	logger *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(svc *service.SessionsService, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{svc: svc, logger: logger}
}

type startSessionRequest struct {
	UserID string `json:"user_id"`
}

// Start handles POST /stations/{stationID}/session/start.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	stationID := chi.URLParam(r, "stationID")
	session, err := h.svc.Start(r.Context(), stationID, req.UserID)
	if err != nil {
		h.logger.Warn("start session failed",
			zap.String("station_id", stationID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "session": session})
}

// End handles POST /stations/{stationID}/session/end.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	if err := h.svc.End(r.Context(), stationID); err != nil {
		h.logger.Warn("end session failed",
			zap.String("station_id", stationID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
