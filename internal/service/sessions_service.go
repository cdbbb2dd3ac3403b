package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
	"taplist/internal/telemetry"
)

// SessionsService governs the single currentSession field of a station.
type SessionsService struct {
	store    store.Store
	attempts int
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionsService builds service.
func NewSessionsService(s store.Store, attempts int, metrics *telemetry.Metrics, logger *zap.Logger) *SessionsService {
	return &SessionsService{
		store:    s,
		attempts: attempts,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start grants the session to userID. The attendee removal and the session
// grant commit in the same transaction: no state exists where the user holds
// both a queue slot and the session, and two racing starts cannot both
// succeed. A timed session already past its expiry is treated as stale and
// cleared before the grant.
func (s *SessionsService) Start(ctx context.Context, stationID, userID string) (*models.CurrentSession, error) {
	var granted *models.CurrentSession
	err := store.RunTransact(ctx, s.store, s.attempts, func(txn store.Txn) error {
		station, err := txn.Station(stationID)
		if err != nil {
			return err
		}
		if _, ok := station.FindAttendee(userID); !ok {
			return ErrNotInQueue
		}

		now := s.now()
		if station.CurrentSession != nil {
			if !station.CurrentSession.Expired(now) {
				return ErrStationBusy
			}
			s.logger.Info("clearing stale session",
				zap.String("station_id", stationID),
				zap.String("stale_user_id", station.CurrentSession.UserID))
			station.CurrentSession = nil
		}

		session := &models.CurrentSession{UserID: userID, StartedAt: now}
		if station.Mode == models.ModeTimed {
			expires := now.Add(time.Duration(station.SessionDurationSeconds) * time.Second)
			session.ExpiresAt = &expires
		}

		station.CurrentSession = session
		station.RemoveAttendee(userID)
		txn.PutStation(station)
		granted = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SessionStarts.Inc()
	s.logger.Info("session started",
		zap.String("station_id", stationID),
		zap.String("user_id", userID))
	return granted, nil
}

// End clears the active session and removes the station from the holder's
// membership set. The holder is not re-queued.
func (s *SessionsService) End(ctx context.Context, stationID string) error {
	err := store.RunTransact(ctx, s.store, s.attempts, func(txn store.Txn) error {
		station, err := txn.Station(stationID)
		if err != nil {
			return err
		}
		if station.CurrentSession == nil {
			return ErrNoActiveSession
		}
		return s.clearSession(txn, station)
	})
	if err != nil {
		return err
	}

	s.metrics.SessionEnds.Inc()
	s.logger.Info("session ended", zap.String("station_id", stationID))
	return nil
}

// Expire clears a timed session whose expiry has been reached. Any other
// state is a logged no-op, which makes duplicate and late scheduler
// callbacks safe.
func (s *SessionsService) Expire(ctx context.Context, stationID string) error {
	expired := false
	err := store.RunTransact(ctx, s.store, s.attempts, func(txn store.Txn) error {
		expired = false
		station, err := txn.Station(stationID)
		if errors.Is(err, store.ErrStationNotFound) {
			s.logger.Warn("expire: station not found", zap.String("station_id", stationID))
			return nil
		}
		if err != nil {
			return err
		}

		session := station.CurrentSession
		if session == nil || session.ExpiresAt == nil {
			s.logger.Info("expire: no timed session to clear",
				zap.String("station_id", stationID))
			return nil
		}
		if !session.Expired(s.now()) {
			s.logger.Warn("expire: session not yet expired",
				zap.String("station_id", stationID),
				zap.Time("expires_at", *session.ExpiresAt))
			return nil
		}

		if err := s.clearSession(txn, station); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return err
	}

	if expired {
		s.metrics.SessionExpiry.Inc()
		s.logger.Info("session expired", zap.String("station_id", stationID))
	}
	return nil
}

// clearSession removes currentSession and the holder's membership in the
// same transaction.
func (s *SessionsService) clearSession(txn store.Txn, station *models.Station) error {
	holder := station.CurrentSession.UserID
	station.CurrentSession = nil
	txn.PutStation(station)

	user, err := txn.User(holder)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	user.RemoveWaitlist(station.ID)
	txn.PutUser(user)
	return nil
}
