package store

import (
	"context"
	"errors"
	"time"

	"taplist/internal/models"
)

// Sentinel errors shared by store implementations.
var (
	ErrStationNotFound = errors.New("station not found")
	ErrUserNotFound    = errors.New("user not found")
	// ErrConflict means the transaction lost an optimistic-concurrency race.
	// Callers go through RunTransact, which retries before surfacing it.
	ErrConflict = errors.New("transaction conflict")
)

// StationEvent is one committed version of a station document. Watchers may
// receive duplicates and out-of-order versions; Version lets them discard
// both.
type StationEvent struct {
	StationID string
	Version   int64
	Station   *models.Station
	// Deleted marks the final event for a removed station.
	Deleted bool
}

// Txn exposes reads and buffered writes scoped to one transaction. Reads see
// committed state and pin the document version; the commit fails with
// ErrConflict if any pinned document changed underneath.
type Txn interface {
	Station(id string) (*models.Station, error)
	User(id string) (*models.User, error)
	PutStation(station *models.Station)
	PutUser(user *models.User)
	DeleteStation(id string)
}

// Store is the durable, versioned document store for stations and users.
// All mutations go through Transact; plain getters are advisory reads.
type Store interface {
	GetStation(ctx context.Context, id string) (*models.Station, error)
	ListStations(ctx context.Context) ([]*models.Station, error)
	ListStationsByOwner(ctx context.Context, ownerID string) ([]*models.Station, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// ExpiredSessionStations returns ids of stations whose current session
	// has an expiry at or before now. Used by the reconciliation sweep.
	ExpiredSessionStations(ctx context.Context, now time.Time) ([]string, error)

	// Transact runs fn against a transaction and commits its buffered
	// writes atomically. Returns ErrConflict when a concurrent commit won.
	Transact(ctx context.Context, fn func(Txn) error) error

	// Watch streams every committed station version until stop is called.
	// stationID filters to a single station; empty means all stations.
	Watch(ctx context.Context, stationID string) (<-chan StationEvent, func(), error)
}
