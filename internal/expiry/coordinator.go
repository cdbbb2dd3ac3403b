// Package expiry bridges session-start transitions to the external scheduler
// and fired callbacks back to session expiration.
package expiry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/scheduler"
	"taplist/internal/service"
	"taplist/internal/store"
	"taplist/internal/telemetry"
)

// Coordinator watches committed station versions, schedules one expiration
// callback per timed session, and periodically sweeps for sessions whose
// callback never arrived.
type Coordinator struct {
	store         store.Store
	sessions      *service.SessionsService
	sched         scheduler.Scheduler
	metrics       *telemetry.Metrics
	logger        *zap.Logger
	sweepInterval time.Duration

	mu   sync.Mutex
	seen map[string]snapshot
}

type snapshot struct {
	version int64
	session *models.CurrentSession
}

// NewCoordinator builds the coordinator.
func NewCoordinator(
	s store.Store,
	sessions *service.SessionsService,
	sched scheduler.Scheduler,
	sweepInterval time.Duration,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Coordinator {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Coordinator{
		store:         s,
		sessions:      sessions,
		sched:         sched,
		metrics:       metrics,
		logger:        logger,
		sweepInterval: sweepInterval,
		seen:          make(map[string]snapshot),
	}
}

// HandleTask is the scheduler dispatch handler. The expire guard makes
// duplicate and late deliveries no-ops.
func (c *Coordinator) HandleTask(ctx context.Context, stationID string, _ []byte) error {
	c.metrics.TasksFired.Inc()
	return c.sessions.Expire(ctx, stationID)
}

// Run consumes the station watch stream and runs the reconciliation sweep
// until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	events, stop, err := c.store.Watch(ctx, "")
	if err != nil {
		return err
	}
	defer stop()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Observe(ctx, ev)
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Observe processes one committed station version. Duplicates and stale
// out-of-order deliveries are dropped by version; a session that became
// present with an expiry since the last processed version gets exactly one
// schedule call.
func (c *Coordinator) Observe(ctx context.Context, ev store.StationEvent) {
	c.mu.Lock()
	prev, known := c.seen[ev.StationID]
	if known && ev.Version <= prev.version {
		c.mu.Unlock()
		return
	}
	if ev.Deleted {
		delete(c.seen, ev.StationID)
		c.mu.Unlock()
		return
	}
	next := snapshot{version: ev.Version}
	if ev.Station != nil {
		next.session = ev.Station.CurrentSession
	}
	c.seen[ev.StationID] = next
	c.mu.Unlock()

	session := next.session
	if session == nil || session.ExpiresAt == nil {
		return
	}
	// Schedule when the session is newly present since the last processed
	// version. On first sight the prior state is unknown; scheduling anyway
	// is safe because expire is idempotent, and it covers sessions started
	// while this process was down.
	if known && prev.session != nil {
		return
	}

	if err := c.sched.Schedule(ctx, ev.StationID, *session.ExpiresAt, nil); err != nil {
		// The start transaction already committed; the sweep is the
		// fallback for this session.
		c.logger.Error("failed to schedule expiration",
			zap.String("station_id", ev.StationID),
			zap.Time("expires_at", *session.ExpiresAt),
			zap.Error(err))
		return
	}

	c.logger.Info("scheduled expiration",
		zap.String("station_id", ev.StationID),
		zap.Time("expires_at", *session.ExpiresAt))
}

// Sweep expires sessions whose scheduled callback was lost.
func (c *Coordinator) Sweep(ctx context.Context) {
	ids, err := c.store.ExpiredSessionStations(ctx, time.Now().UTC())
	if err != nil {
		c.logger.Warn("stale session sweep failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		c.logger.Info("sweep found stale session", zap.String("station_id", id))
		if err := c.sessions.Expire(ctx, id); err != nil {
			c.logger.Warn("sweep expire failed", zap.String("station_id", id), zap.Error(err))
		}
	}
}
