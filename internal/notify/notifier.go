// Package notify bridges session-clear transitions to next-in-line user
// notification.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
	"taplist/internal/telemetry"
)

// EventTypePositionOne tags the "you are next" notification payload.
const EventTypePositionOne = "position_one"

// Notifier watches committed station versions and notifies the user at
// position 1 whenever a session clears. Delivery failures are logged and not
// retried here; retry, if any, belongs to the push transport.
type Notifier struct {
	store   store.Store
	sender  Sender
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu   sync.Mutex
	seen map[string]snapshot
}

type snapshot struct {
	version int64
	session *models.CurrentSession
}

// NewNotifier builds the notifier.
func NewNotifier(s store.Store, sender Sender, metrics *telemetry.Metrics, logger *zap.Logger) *Notifier {
	return &Notifier{
		store:   s,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
		seen:    make(map[string]snapshot),
	}
}

// Run consumes the station watch stream until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	events, stop, err := n.store.Watch(ctx, "")
	if err != nil {
		return err
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			n.Observe(ctx, ev)
		}
	}
}

// Observe processes one committed station version. The version guard drops
// duplicates and stale deliveries, so a single clear transition produces at
// most one notification from this process.
func (n *Notifier) Observe(ctx context.Context, ev store.StationEvent) {
	n.mu.Lock()
	prev, known := n.seen[ev.StationID]
	if known && ev.Version <= prev.version {
		n.mu.Unlock()
		return
	}
	if ev.Deleted {
		delete(n.seen, ev.StationID)
		n.mu.Unlock()
		return
	}
	next := snapshot{version: ev.Version}
	if ev.Station != nil {
		next.session = ev.Station.CurrentSession
	}
	n.seen[ev.StationID] = next
	n.mu.Unlock()

	// A clear transition requires knowing the session was present before;
	// on first sight of a station we only record state.
	if !known || prev.session == nil || next.session != nil || ev.Station == nil {
		return
	}

	attendee, ok := ev.Station.NextInLine()
	if !ok {
		n.metrics.NotifySkipped.Inc()
		return
	}
	n.notifyPositionOne(ctx, attendee.UserID, ev.Station)
}

func (n *Notifier) notifyPositionOne(ctx context.Context, userID string, station *models.Station) {
	user, err := n.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		n.logger.Warn("next-in-line user not found",
			zap.String("user_id", userID),
			zap.String("station_id", station.ID))
		n.metrics.NotifySkipped.Inc()
		return
	}
	if err != nil {
		n.logger.Error("failed to load next-in-line user",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	if user.FCMToken == "" {
		// Tokens are best-effort; nothing to retry.
		n.logger.Info("no token for next-in-line user, skipping",
			zap.String("user_id", userID),
			zap.String("station_id", station.ID))
		n.metrics.NotifySkipped.Inc()
		return
	}

	msg := Message{
		Token: user.FCMToken,
		Title: "It's Your Turn!",
		Body:  fmt.Sprintf("You're next in line for %s. Tap the NFC tag to start.", station.Name),
		Data: map[string]string{
			"stationId": station.ID,
			"type":      EventTypePositionOne,
		},
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Error("failed to send position-one notification",
			zap.String("user_id", userID),
			zap.String("station_id", station.ID),
			zap.Error(err))
		return
	}

	n.metrics.NotifySent.Inc()
	n.logger.Info("position-one notification sent",
		zap.String("user_id", userID),
		zap.String("station_id", station.ID))
}
