package store

import (
	"context"
	"sync"
	"time"

	"taplist/internal/models"
)

const subscriberBuffer = 256

// Memory is a full in-process Store used by tests and single-node runs. It
// keeps versioned documents under a mutex and validates the write set at
// commit time, so concurrent Transact calls race exactly like they do
// against the durable store.
type Memory struct {
	mu       sync.Mutex
	stations map[string]*models.Station
	users    map[string]*models.User
	subs     map[int]*memorySub
	subSeq   int
}

type memorySub struct {
	stationID string
	ch        chan StationEvent
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		stations: make(map[string]*models.Station),
		users:    make(map[string]*models.User),
		subs:     make(map[int]*memorySub),
	}
}

// GetStation returns a copy of the committed station document.
func (m *Memory) GetStation(_ context.Context, id string) (*models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return nil, ErrStationNotFound
	}
	return st.Clone(), nil
}

// ListStations returns copies of all station documents.
func (m *Memory) ListStations(_ context.Context) ([]*models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Station, 0, len(m.stations))
	for _, st := range m.stations {
		out = append(out, st.Clone())
	}
	return out, nil
}

// ListStationsByOwner returns stations owned by ownerID.
func (m *Memory) ListStationsByOwner(_ context.Context, ownerID string) ([]*models.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Station
	for _, st := range m.stations {
		if st.OwnerID == ownerID {
			out = append(out, st.Clone())
		}
	}
	return out, nil
}

// GetUser returns a copy of the committed user document.
func (m *Memory) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

// ExpiredSessionStations scans for sessions at or past their expiry.
func (m *Memory) ExpiredSessionStations(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, st := range m.stations {
		if st.CurrentSession.Expired(now) {
			out = append(out, id)
		}
	}
	return out, nil
}

type memoryTxn struct {
	m           *Memory
	putStations map[string]*models.Station
	putUsers    map[string]*models.User
	delStations map[string]int64
}

func (t *memoryTxn) Station(id string) (*models.Station, error) {
	if st, ok := t.putStations[id]; ok {
		return st.Clone(), nil
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	st, ok := t.m.stations[id]
	if !ok {
		return nil, ErrStationNotFound
	}
	return st.Clone(), nil
}

func (t *memoryTxn) User(id string) (*models.User, error) {
	if u, ok := t.putUsers[id]; ok {
		return u.Clone(), nil
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	u, ok := t.m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (t *memoryTxn) PutStation(station *models.Station) {
	t.putStations[station.ID] = station.Clone()
}

func (t *memoryTxn) PutUser(user *models.User) {
	t.putUsers[user.ID] = user.Clone()
}

func (t *memoryTxn) DeleteStation(id string) {
	delete(t.putStations, id)
	t.delStations[id] = 0
}

// Transact runs fn and commits its write set if every written document is
// still at the version the transaction saw. The document's Version field is
// the pin: reads stamp it, commit validates it.
func (m *Memory) Transact(_ context.Context, fn func(Txn) error) error {
	txn := &memoryTxn{
		m:           m,
		putStations: make(map[string]*models.Station),
		putUsers:    make(map[string]*models.User),
		delStations: make(map[string]int64),
	}
	if err := fn(txn); err != nil {
		return err
	}

	m.mu.Lock()

	for id, st := range txn.putStations {
		var current int64
		if existing, ok := m.stations[id]; ok {
			current = existing.Version
		}
		if st.Version != current {
			m.mu.Unlock()
			return ErrConflict
		}
	}
	for id, u := range txn.putUsers {
		var current int64
		if existing, ok := m.users[id]; ok {
			current = existing.Version
		}
		if u.Version != current {
			m.mu.Unlock()
			return ErrConflict
		}
	}

	var events []StationEvent
	for id, st := range txn.putStations {
		committed := st.Clone()
		committed.Version = st.Version + 1
		m.stations[id] = committed
		events = append(events, StationEvent{
			StationID: id,
			Version:   committed.Version,
			Station:   committed.Clone(),
		})
	}
	for id, u := range txn.putUsers {
		committed := u.Clone()
		committed.Version = u.Version + 1
		m.users[id] = committed
	}
	for id := range txn.delStations {
		if existing, ok := m.stations[id]; ok {
			delete(m.stations, id)
			events = append(events, StationEvent{
				StationID: id,
				Version:   existing.Version + 1,
				Deleted:   true,
			})
		}
	}

	// Fan out under the lock; sends are non-blocking, and holding the lock
	// keeps a concurrent stop from closing a channel mid-send.
	for _, ev := range events {
		for _, sub := range m.subs {
			if sub.stationID != "" && sub.stationID != ev.StationID {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				// Slow watcher; the reconciliation sweep covers drops.
			}
		}
	}
	m.mu.Unlock()
	return nil
}

// Watch streams committed station versions until stop is called.
func (m *Memory) Watch(_ context.Context, stationID string) (<-chan StationEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subSeq++
	id := m.subSeq
	sub := &memorySub{stationID: stationID, ch: make(chan StationEvent, subscriberBuffer)}
	m.subs[id] = sub

	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, stop, nil
}
