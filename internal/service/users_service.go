package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
)

// WaitlistEntry pairs a station with the user's live position in it. Position
// 0 means the user currently holds the station's session.
type WaitlistEntry struct {
	Station  *models.Station `json:"station"`
	Position int             `json:"position"`
}

// UsersService manages user documents and their device tokens.
type UsersService struct {
	store    store.Store
	attempts int
	logger   *zap.Logger
}

// NewUsersService builds service.
func NewUsersService(s store.Store, attempts int, logger *zap.Logger) *UsersService {
	return &UsersService{store: s, attempts: attempts, logger: logger}
}

// GetOrCreate fetches the user document, creating it on first sight.
func (u *UsersService) GetOrCreate(ctx context.Context, userID string) (*models.User, error) {
	user, err := u.store.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	created := &models.User{ID: userID, CreatedAt: time.Now().UTC()}
	err = store.RunTransact(ctx, u.store, u.attempts, func(txn store.Txn) error {
		if existing, err := txn.User(userID); err == nil {
			created = existing
			return nil
		}
		txn.PutUser(created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateToken stores the user's notification token.
func (u *UsersService) UpdateToken(ctx context.Context, userID, token string) error {
	return store.RunTransact(ctx, u.store, u.attempts, func(txn store.Txn) error {
		user, err := txn.User(userID)
		if errors.Is(err, store.ErrUserNotFound) {
			user = &models.User{ID: userID, CreatedAt: time.Now().UTC()}
		} else if err != nil {
			return err
		}
		user.FCMToken = token
		txn.PutUser(user)
		return nil
	})
}

// Waitlists resolves the user's memberships to stations with live positions.
// Stations that vanished since the membership was recorded are skipped.
func (u *UsersService) Waitlists(ctx context.Context, userID string) ([]WaitlistEntry, error) {
	user, err := u.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]WaitlistEntry, 0, len(user.CurrentWaitlists))
	for _, stationID := range user.CurrentWaitlists {
		station, err := u.store.GetStation(ctx, stationID)
		if errors.Is(err, store.ErrStationNotFound) {
			u.logger.Warn("membership points at missing station",
				zap.String("user_id", userID),
				zap.String("station_id", stationID))
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, WaitlistEntry{
			Station:  station,
			Position: station.Position(userID),
		})
	}
	return entries, nil
}
