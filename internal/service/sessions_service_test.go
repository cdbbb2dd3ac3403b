package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
	"taplist/internal/telemetry"
)

func newSessionsFixture(t *testing.T) (*store.Memory, *WaitlistService, *SessionsService) {
	t.Helper()
	m := store.NewMemory()
	logger := zap.NewNop()
	waitlist := NewWaitlistService(m, testAttempts, logger)
	sessions := NewSessionsService(m, testAttempts, telemetry.NewMetrics(), logger)
	return m, waitlist, sessions
}

func TestStartGrantsSessionAndDequeues(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeManual})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))

	position, err := waitlist.Position(ctx, "s1", "u1")
	require.NoError(t, err)
	require.Equal(t, 1, position)

	session, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Nil(t, session.ExpiresAt, "manual sessions carry no expiry")

	station, err := m.GetStation(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, station.CurrentSession)
	assert.Equal(t, "u1", station.CurrentSession.UserID)
	_, inQueue := station.FindAttendee("u1")
	assert.False(t, inQueue, "session grant and queue removal commit together")

	// The holder still occupies the station; membership survives until the
	// session clears.
	user, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, user.CurrentWaitlists)
}

func TestStartTimedSessionSetsExpiry(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return t0 }
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeTimed, SessionDurationSeconds: 900})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	session, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	require.NotNil(t, session.ExpiresAt)
	assert.Equal(t, t0.Add(900*time.Second), *session.ExpiresAt)
}

func TestStartRequiresQueueMembership(t *testing.T) {
	m, _, sessions := newSessionsFixture(t)
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true})

	_, err := sessions.Start(context.Background(), "s1", "outsider")
	assert.ErrorIs(t, err, ErrNotInQueue)
}

func TestStartBusyStation(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeManual})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	require.NoError(t, waitlist.Join(ctx, "s1", "u2"))
	_, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	_, err = sessions.Start(ctx, "s1", "u2")
	assert.ErrorIs(t, err, ErrStationBusy)
}

func TestStartClearsStaleTimedSession(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return t0 }
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeTimed, SessionDurationSeconds: 60})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	_, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	// Past the first session's expiry, the next user takes over directly.
	sessions.now = func() time.Time { return t0.Add(61 * time.Second) }
	require.NoError(t, waitlist.Join(ctx, "s1", "u2"))
	session, err := sessions.Start(ctx, "s1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", session.UserID)
}

func TestQueueAdvancesAfterStart(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeManual})

	require.NoError(t, waitlist.Join(ctx, "s1", "alice"))
	require.NoError(t, waitlist.Join(ctx, "s1", "bob"))

	_, err := sessions.Start(ctx, "s1", "alice")
	require.NoError(t, err)

	position, err := waitlist.Position(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, position)
}

func TestEndClearsSessionAndMembership(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeManual})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	_, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	require.NoError(t, sessions.End(ctx, "s1"))

	station, err := m.GetStation(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, station.CurrentSession)
	_, requeued := station.FindAttendee("u1")
	assert.False(t, requeued, "ending never re-queues the holder")

	user, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, user.CurrentWaitlists)
}

func TestEndWithoutSession(t *testing.T) {
	m, _, sessions := newSessionsFixture(t)
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true})

	before, err := m.GetStation(context.Background(), "s1")
	require.NoError(t, err)

	err = sessions.End(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	after, err := m.GetStation(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "no state mutated")
}

func TestExpireAtBoundary(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return t0 }
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeTimed, SessionDurationSeconds: 900})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	_, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	// One second early: no-op.
	sessions.now = func() time.Time { return t0.Add(899 * time.Second) }
	require.NoError(t, sessions.Expire(ctx, "s1"))
	station, err := m.GetStation(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, station.CurrentSession)

	// Exactly at expiry: cleared.
	sessions.now = func() time.Time { return t0.Add(900 * time.Second) }
	require.NoError(t, sessions.Expire(ctx, "s1"))
	station, err = m.GetStation(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, station.CurrentSession)

	user, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, user.CurrentWaitlists)
}

func TestExpireIsIdempotent(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return t0 }
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeTimed, SessionDurationSeconds: 60})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	_, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	sessions.now = func() time.Time { return t0.Add(time.Minute) }
	require.NoError(t, sessions.Expire(ctx, "s1"))
	require.NoError(t, sessions.Expire(ctx, "s1"), "duplicate delivery is a no-op")
	require.NoError(t, sessions.Expire(ctx, "missing"), "unknown station is a no-op")
}

func TestExpireIgnoresManualSession(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeManual})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	_, err := sessions.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	require.NoError(t, sessions.Expire(ctx, "s1"))
	station, err := m.GetStation(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, station.CurrentSession, "manual sessions only end explicitly")
}

func TestConcurrentStartsExactlyOneWins(t *testing.T) {
	m, waitlist, sessions := newSessionsFixture(t)
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeManual})

	require.NoError(t, waitlist.Join(ctx, "s1", "u1"))
	require.NoError(t, waitlist.Join(ctx, "s1", "u2"))

	var wg sync.WaitGroup
	results := make(map[string]error, 2)
	var mu sync.Mutex
	for _, userID := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := sessions.Start(ctx, "s1", userID)
			mu.Lock()
			results[userID] = err
			mu.Unlock()
		}(userID)
	}
	wg.Wait()

	var successes, busy int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrStationBusy):
			busy++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent start succeeds")
	assert.Equal(t, 1, busy)

	station, err := m.GetStation(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, station.CurrentSession)
	holder := station.CurrentSession.UserID
	_, stillQueued := station.FindAttendee(holder)
	assert.False(t, stillQueued)
}
