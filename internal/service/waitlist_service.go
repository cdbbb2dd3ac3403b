package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
)

// WaitlistService manages queue membership on stations.
type WaitlistService struct {
	store    store.Store
	attempts int
	logger   *zap.Logger
}

// NewWaitlistService builds service.
func NewWaitlistService(s store.Store, attempts int, logger *zap.Logger) *WaitlistService {
	return &WaitlistService{store: s, attempts: attempts, logger: logger}
}

// Join appends the user to the station's waitlist and records the station in
// the user's membership set, in one transaction. A user already holding an
// attendee record is left untouched: joining twice is a no-op.
func (w *WaitlistService) Join(ctx context.Context, stationID, userID string) error {
	err := store.RunTransact(ctx, w.store, w.attempts, func(txn store.Txn) error {
		station, err := txn.Station(stationID)
		if err != nil {
			return err
		}
		if !station.IsActive {
			return ErrInactiveStation
		}
		if _, ok := station.FindAttendee(userID); ok {
			return nil
		}

		station.JoinSeq++
		station.Attendees = append(station.Attendees, models.Attendee{
			UserID:   userID,
			Status:   models.StatusWaiting,
			JoinedAt: time.Now().UTC(),
			Seq:      station.JoinSeq,
		})
		txn.PutStation(station)

		user, err := txn.User(userID)
		if errors.Is(err, store.ErrUserNotFound) {
			user = &models.User{ID: userID, CreatedAt: time.Now().UTC()}
		} else if err != nil {
			return err
		}
		user.AddWaitlist(stationID)
		txn.PutUser(user)
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("user joined waitlist",
		zap.String("station_id", stationID),
		zap.String("user_id", userID))
	return nil
}

// Leave removes the user's attendee record if present (no-op otherwise) and
// drops the station from the user's membership set.
func (w *WaitlistService) Leave(ctx context.Context, stationID, userID string) error {
	err := store.RunTransact(ctx, w.store, w.attempts, func(txn store.Txn) error {
		station, err := txn.Station(stationID)
		if err != nil {
			return err
		}
		if station.RemoveAttendee(userID) {
			txn.PutStation(station)
		}

		user, err := txn.User(userID)
		if errors.Is(err, store.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		user.RemoveWaitlist(stationID)
		txn.PutUser(user)
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("user left waitlist",
		zap.String("station_id", stationID),
		zap.String("user_id", userID))
	return nil
}

// Position returns the user's 1-based rank among waiting attendees, 0 when
// absent.
func (w *WaitlistService) Position(ctx context.Context, stationID, userID string) (int, error) {
	station, err := w.store.GetStation(ctx, stationID)
	if err != nil {
		return 0, err
	}
	return station.Position(userID), nil
}

// IsMember is an advisory, non-transactional existence check. UI only; any
// authoritative decision re-reads inside a transaction.
func (w *WaitlistService) IsMember(ctx context.Context, stationID, userID string) (bool, error) {
	station, err := w.store.GetStation(ctx, stationID)
	if err != nil {
		return false, err
	}
	_, ok := station.FindAttendee(userID)
	return ok, nil
}
