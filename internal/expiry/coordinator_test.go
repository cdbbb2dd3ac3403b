package expiry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/service"
	"taplist/internal/store"
	"taplist/internal/telemetry"
)

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduleCall
}

type scheduleCall struct {
	key  string
	when time.Time
}

func (f *fakeScheduler) Schedule(_ context.Context, key string, when time.Time, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scheduleCall{key: key, when: when})
	return nil
}

func (f *fakeScheduler) scheduled() []scheduleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduleCall(nil), f.calls...)
}

func newFixture(t *testing.T) (*store.Memory, *service.SessionsService, *fakeScheduler, *Coordinator) {
	t.Helper()
	m := store.NewMemory()
	logger := zap.NewNop()
	metrics := telemetry.NewMetrics()
	sessions := service.NewSessionsService(m, 5, metrics, logger)
	sched := &fakeScheduler{}
	coord := NewCoordinator(m, sessions, sched, time.Minute, metrics, logger)
	return m, sessions, sched, coord
}

func timedEvent(stationID string, version int64, expiresAt *time.Time) store.StationEvent {
	station := &models.Station{ID: stationID, Mode: models.ModeTimed, Version: version}
	if expiresAt != nil {
		station.CurrentSession = &models.CurrentSession{UserID: "u", StartedAt: expiresAt.Add(-time.Minute), ExpiresAt: expiresAt}
	}
	return store.StationEvent{StationID: stationID, Version: version, Station: station}
}

func TestObserveSchedulesOnSessionStart(t *testing.T) {
	_, _, sched, coord := newFixture(t)
	ctx := context.Background()
	expires := time.Now().Add(15 * time.Minute).UTC()

	coord.Observe(ctx, timedEvent("s1", 1, nil))
	coord.Observe(ctx, timedEvent("s1", 2, &expires))

	calls := sched.scheduled()
	require.Len(t, calls, 1)
	assert.Equal(t, "s1", calls[0].key)
	assert.Equal(t, expires, calls[0].when)
}

func TestObserveSchedulesOnFirstSightWithSession(t *testing.T) {
	_, _, sched, coord := newFixture(t)
	expires := time.Now().Add(time.Minute).UTC()

	// No prior knowledge of the station: scheduling is safe because expire
	// is idempotent, and it covers sessions started before this process.
	coord.Observe(context.Background(), timedEvent("s1", 3, &expires))
	assert.Len(t, sched.scheduled(), 1)
}

func TestObserveIgnoresDuplicateAndStaleVersions(t *testing.T) {
	_, _, sched, coord := newFixture(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Minute).UTC()

	coord.Observe(ctx, timedEvent("s1", 1, nil))
	coord.Observe(ctx, timedEvent("s1", 2, &expires))
	coord.Observe(ctx, timedEvent("s1", 2, &expires))
	coord.Observe(ctx, timedEvent("s1", 1, nil))

	assert.Len(t, sched.scheduled(), 1, "one schedule per transition")
}

func TestObserveIgnoresManualSessions(t *testing.T) {
	_, _, sched, coord := newFixture(t)
	ctx := context.Background()

	station := &models.Station{
		ID:             "s1",
		Mode:           models.ModeManual,
		Version:        2,
		CurrentSession: &models.CurrentSession{UserID: "u", StartedAt: time.Now()},
	}
	coord.Observe(ctx, store.StationEvent{StationID: "s1", Version: 1, Station: &models.Station{ID: "s1", Version: 1}})
	coord.Observe(ctx, store.StationEvent{StationID: "s1", Version: 2, Station: station})

	assert.Empty(t, sched.scheduled())
}

func TestHandleTaskExpiresSession(t *testing.T) {
	m, _, _, coord := newFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Second).UTC()
	require.NoError(t, m.Transact(ctx, func(txn store.Txn) error {
		txn.PutStation(&models.Station{
			ID:             "s1",
			Mode:           models.ModeTimed,
			CurrentSession: &models.CurrentSession{UserID: "u1", ExpiresAt: &past},
		})
		return nil
	}))

	require.NoError(t, coord.HandleTask(ctx, "s1", nil))

	station, err := m.GetStation(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, station.CurrentSession)

	// Duplicate delivery after the clear is a safe no-op.
	require.NoError(t, coord.HandleTask(ctx, "s1", nil))
}

func TestSweepExpiresStaleSessions(t *testing.T) {
	m, _, _, coord := newFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute).UTC()
	future := time.Now().Add(time.Hour).UTC()
	require.NoError(t, m.Transact(ctx, func(txn store.Txn) error {
		txn.PutStation(&models.Station{ID: "stale", Mode: models.ModeTimed,
			CurrentSession: &models.CurrentSession{UserID: "a", ExpiresAt: &past}})
		txn.PutStation(&models.Station{ID: "fresh", Mode: models.ModeTimed,
			CurrentSession: &models.CurrentSession{UserID: "b", ExpiresAt: &future}})
		return nil
	}))

	coord.Sweep(ctx)

	stale, err := m.GetStation(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, stale.CurrentSession)

	fresh, err := m.GetStation(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, fresh.CurrentSession)
}

func TestRunReactsToCommittedStarts(t *testing.T) {
	m, sessions, sched, coord := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()

	require.NoError(t, m.Transact(ctx, func(txn store.Txn) error {
		txn.PutStation(&models.Station{
			ID: "s1", IsActive: true, Mode: models.ModeTimed, SessionDurationSeconds: 60,
			Attendees: []models.Attendee{{UserID: "u1", Status: models.StatusWaiting, JoinedAt: time.Now(), Seq: 1}},
		})
		return nil
	}))
	_, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sched.scheduled()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, sched.scheduled(), 1)
	assert.Equal(t, "s1", sched.scheduled()[0].key)

	cancel()
	<-done
}
