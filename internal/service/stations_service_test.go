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

func TestCreateStationDefaults(t *testing.T) {
	m := store.NewMemory()
	svc := NewStationsService(m, testAttempts, zap.NewNop())

	station, err := svc.Create(context.Background(), CreateStationInput{
		OwnerID: "owner",
		Name:    "  Foosball  ",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, station.ID)
	assert.Equal(t, "Foosball", station.Name)
	assert.Equal(t, models.ModeManual, station.Mode)
	assert.True(t, station.IsActive)
	assert.False(t, station.CreatedAt.IsZero())
	assert.Empty(t, station.Attendees)
	assert.Nil(t, station.CurrentSession)
}

func TestCreateStationRejectsUnknownMode(t *testing.T) {
	svc := NewStationsService(store.NewMemory(), testAttempts, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateStationInput{OwnerID: "o", Name: "n", Mode: "hourly"})
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestUpdateStationPatch(t *testing.T) {
	m := store.NewMemory()
	svc := NewStationsService(m, testAttempts, zap.NewNop())
	ctx := context.Background()

	station, err := svc.Create(ctx, CreateStationInput{OwnerID: "o", Name: "old"})
	require.NoError(t, err)

	name := "new"
	mode := models.ModeTimed
	duration := 600
	inactive := false
	updated, err := svc.Update(ctx, station.ID, StationPatch{
		Name:                   &name,
		Mode:                   &mode,
		SessionDurationSeconds: &duration,
		IsActive:               &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, "new", updated.Name)
	assert.Equal(t, models.ModeTimed, updated.Mode)
	assert.Equal(t, 600, updated.SessionDurationSeconds)
	assert.False(t, updated.IsActive)
}

func TestDeleteStation(t *testing.T) {
	m := store.NewMemory()
	svc := NewStationsService(m, testAttempts, zap.NewNop())
	ctx := context.Background()

	station, err := svc.Create(ctx, CreateStationInput{OwnerID: "o", Name: "n"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, station.ID))
	_, err = svc.Get(ctx, station.ID)
	assert.ErrorIs(t, err, store.ErrStationNotFound)

	err = svc.Delete(ctx, station.ID)
	assert.ErrorIs(t, err, store.ErrStationNotFound)
}

func TestListByOwner(t *testing.T) {
	m := store.NewMemory()
	svc := NewStationsService(m, testAttempts, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateStationInput{OwnerID: "alice", Name: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateStationInput{OwnerID: "bob", Name: "b"})
	require.NoError(t, err)

	owned, err := svc.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "a", owned[0].Name)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
