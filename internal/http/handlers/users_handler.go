package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taplist/internal/service"
)

// UsersHandler serves user document endpoints.
type UsersHandler struct {
	svc    *service.UsersService
	logger *zap.Logger
}

// NewUsersHandler builds handler set.
func NewUsersHandler(svc *service.UsersService, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{svc: svc, logger: logger}
}

// Get handles GET /users/{userID}, creating the document on first sight.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetOrCreate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("get user failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateTokenRequest struct {
	FCMToken string `json:"fcm_token"`
}

// UpdateToken handles PUT /users/{userID}/token.
func (h *UsersHandler) UpdateToken(w http.ResponseWriter, r *http.Request) {
	var req updateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.svc.UpdateToken(r.Context(), userID, req.FCMToken); err != nil {
		h.logger.Error("update token failed", zap.String("user_id", userID), zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Waitlists handles GET /users/{userID}/waitlists.
func (h *UsersHandler) Waitlists(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Waitlists(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"waitlists": entries})
}
