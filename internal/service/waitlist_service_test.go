package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
)

const testAttempts = 5

func newTestStation(t *testing.T, m *store.Memory, station *models.Station) {
	t.Helper()
	require.NoError(t, m.Transact(context.Background(), func(txn store.Txn) error {
		txn.PutStation(station)
		return nil
	}))
}

func TestJoinAppendsAttendeeAndMembership(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true, Mode: models.ModeManual})

	require.NoError(t, svc.Join(ctx, "s1", "u1"))

	position, err := svc.Position(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, position)

	user, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, user.CurrentWaitlists)
}

func TestJoinTwiceIsNoOp(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true})

	require.NoError(t, svc.Join(ctx, "s1", "u1"))
	require.NoError(t, svc.Join(ctx, "s1", "u1"))

	station, err := m.GetStation(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, station.Attendees, 1, "one attendee record per user")
}

func TestJoinOrdersByArrival(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true})

	require.NoError(t, svc.Join(ctx, "s1", "alice"))
	require.NoError(t, svc.Join(ctx, "s1", "bob"))

	posA, err := svc.Position(ctx, "s1", "alice")
	require.NoError(t, err)
	posB, err := svc.Position(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, posA)
	assert.Equal(t, 2, posB)
}

func TestJoinRejectsInactiveStation(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: false})

	err := svc.Join(context.Background(), "s1", "u1")
	assert.ErrorIs(t, err, ErrInactiveStation)
}

func TestJoinMissingStation(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())

	err := svc.Join(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, store.ErrStationNotFound)
}

func TestLeaveRemovesAttendeeAndMembership(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true})

	require.NoError(t, svc.Join(ctx, "s1", "u1"))
	require.NoError(t, svc.Leave(ctx, "s1", "u1"))

	position, err := svc.Position(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, position)

	user, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, user.CurrentWaitlists)
}

func TestLeaveAbsentUserIsNoOp(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true})

	assert.NoError(t, svc.Leave(context.Background(), "s1", "stranger"))
}

func TestIsMember(t *testing.T) {
	m := store.NewMemory()
	svc := NewWaitlistService(m, testAttempts, zap.NewNop())
	ctx := context.Background()
	newTestStation(t, m, &models.Station{ID: "s1", IsActive: true})

	member, err := svc.IsMember(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.False(t, member)

	require.NoError(t, svc.Join(ctx, "s1", "u1"))

	member, err = svc.IsMember(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.True(t, member)
}
