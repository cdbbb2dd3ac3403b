package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taplist/internal/service"
)

// WaitlistHandler serves queue membership endpoints.
type WaitlistHandler struct {
	svc    *service.WaitlistService
	logger *zap.Logger
}

// NewWaitlistHandler builds handler set.
func NewWaitlistHandler(svc *service.WaitlistService, logger *zap.Logger) *WaitlistHandler {
	return &WaitlistHandler{svc: svc, logger: logger}
}

type waitlistRequest struct {
	UserID string `json:"user_id"`
}

// Join handles POST /stations/{stationID}/waitlist/join.
func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	stationID := chi.URLParam(r, "stationID")
	if err := h.svc.Join(r.Context(), stationID, req.UserID); err != nil {
		h.logger.Warn("join failed",
			zap.String("station_id", stationID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Leave handles POST /stations/{stationID}/waitlist/leave.
func (h *WaitlistHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	stationID := chi.URLParam(r, "stationID")
	if err := h.svc.Leave(r.Context(), stationID, req.UserID); err != nil {
		h.logger.Warn("leave failed",
			zap.String("station_id", stationID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Position handles GET /stations/{stationID}/waitlist/position?user_id=.
func (h *WaitlistHandler) Position(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	position, err := h.svc.Position(r.Context(), chi.URLParam(r, "stationID"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position": position,
		"is_front": position == 1,
	})
}
