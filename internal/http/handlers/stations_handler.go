package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taplist/internal/service"
)

// StationsHandler serves station CRUD endpoints.
type StationsHandler struct {
	svc    *service.StationsService
	logger *zap.Logger
}

// NewStationsHandler builds handler set.
func NewStationsHandler(svc *service.StationsService, logger *zap.Logger) *StationsHandler {
	return &StationsHandler{svc: svc, logger: logger}
}

type createStationRequest struct {
	OwnerID                string `json:"owner_id"`
	Name                   string `json:"name"`
	Mode                   string `json:"mode"`
	SessionDurationSeconds int    `json:"session_duration_seconds"`
}

// Create handles POST /stations.
func (h *StationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OwnerID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "owner_id and name are required")
		return
	}

	station, err := h.svc.Create(r.Context(), service.CreateStationInput{
		OwnerID:                req.OwnerID,
		Name:                   req.Name,
		Mode:                   req.Mode,
		SessionDurationSeconds: req.SessionDurationSeconds,
	})
	if err != nil {
		h.logger.Error("create station failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, station)
}

// List handles GET /stations. An owner_id query filters to owned stations.
func (h *StationsHandler) List(w http.ResponseWriter, r *http.Request) {
	var err error
	var stations interface{}
	if ownerID := r.URL.Query().Get("owner_id"); ownerID != "" {
		stations, err = h.svc.ListByOwner(r.Context(), ownerID)
	} else {
		stations, err = h.svc.List(r.Context())
	}
	if err != nil {
		h.logger.Error("list stations failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stations": stations})
}

// Get handles GET /stations/{stationID}.
func (h *StationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	station, err := h.svc.Get(r.Context(), chi.URLParam(r, "stationID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

type updateStationRequest struct {
	Name                   *string `json:"name"`
	Mode                   *string `json:"mode"`
	SessionDurationSeconds *int    `json:"session_duration_seconds"`
	IsActive               *bool   `json:"is_active"`
}

// Update handles PATCH /stations/{stationID}.
func (h *StationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	station, err := h.svc.Update(r.Context(), chi.URLParam(r, "stationID"), service.StationPatch{
		Name:                   req.Name,
		Mode:                   req.Mode,
		SessionDurationSeconds: req.SessionDurationSeconds,
		IsActive:               req.IsActive,
	})
	if err != nil {
		h.logger.Error("update station failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

// Delete handles DELETE /stations/{stationID}.
func (h *StationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "stationID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
