package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
)

// StationsService manages station documents.
type StationsService struct {
	store    store.Store
	attempts int
	logger   *zap.Logger
}

// NewStationsService builds service.
func NewStationsService(s store.Store, attempts int, logger *zap.Logger) *StationsService {
	return &StationsService{store: s, attempts: attempts, logger: logger}
}

// CreateStationInput describes a new station.
type CreateStationInput struct {
	OwnerID                string
	Name                   string
	Mode                   string
	SessionDurationSeconds int
}

// StationPatch carries optional owner edits.
type StationPatch struct {
	Name                   *string
	Mode                   *string
	SessionDurationSeconds *int
	IsActive               *bool
}

// Create registers a new station with an empty waitlist.
func (s *StationsService) Create(ctx context.Context, input CreateStationInput) (*models.Station, error) {
	mode := strings.TrimSpace(input.Mode)
	if mode == "" {
		mode = models.ModeManual
	}
	if mode != models.ModeManual && mode != models.ModeTimed {
		return nil, ErrInvalidMode
	}
	duration := input.SessionDurationSeconds
	if duration < 0 {
		duration = 0
	}

	station := &models.Station{
		ID:                     uuid.NewString(),
		Name:                   strings.TrimSpace(input.Name),
		OwnerID:                input.OwnerID,
		IsActive:               true,
		SessionDurationSeconds: duration,
		Mode:                   mode,
		Attendees:              []models.Attendee{},
		CreatedAt:              time.Now().UTC(),
	}

	err := store.RunTransact(ctx, s.store, s.attempts, func(txn store.Txn) error {
		txn.PutStation(station)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("station created",
		zap.String("station_id", station.ID),
		zap.String("owner_id", station.OwnerID),
		zap.String("mode", station.Mode))
	return station, nil
}

// Get returns the station document.
func (s *StationsService) Get(ctx context.Context, stationID string) (*models.Station, error) {
	return s.store.GetStation(ctx, stationID)
}

// List returns all stations.
func (s *StationsService) List(ctx context.Context) ([]*models.Station, error) {
	return s.store.ListStations(ctx)
}

// ListByOwner returns stations owned by ownerID.
func (s *StationsService) ListByOwner(ctx context.Context, ownerID string) ([]*models.Station, error) {
	return s.store.ListStationsByOwner(ctx, ownerID)
}

// Update applies an owner patch transactionally.
func (s *StationsService) Update(ctx context.Context, stationID string, patch StationPatch) (*models.Station, error) {
	var updated *models.Station
	err := store.RunTransact(ctx, s.store, s.attempts, func(txn store.Txn) error {
		station, err := txn.Station(stationID)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			station.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Mode != nil {
			if *patch.Mode != models.ModeManual && *patch.Mode != models.ModeTimed {
				return ErrInvalidMode
			}
			station.Mode = *patch.Mode
		}
		if patch.SessionDurationSeconds != nil && *patch.SessionDurationSeconds >= 0 {
			station.SessionDurationSeconds = *patch.SessionDurationSeconds
		}
		if patch.IsActive != nil {
			station.IsActive = *patch.IsActive
		}
		txn.PutStation(station)
		updated = station
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the station document.
func (s *StationsService) Delete(ctx context.Context, stationID string) error {
	return store.RunTransact(ctx, s.store, s.attempts, func(txn store.Txn) error {
		if _, err := txn.Station(stationID); err != nil {
			return err
		}
		txn.DeleteStation(stationID)
		return nil
	})
}
