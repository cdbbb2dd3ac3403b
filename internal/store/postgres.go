package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taplist/internal/models"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 30 * time.Minute
	defaultPingTimeout  = 5 * time.Second

	stationChannel = "taplist:stations"
)

// NewPostgresDB creates a pgx/stdlib backed *sql.DB pool and validates the connection.
func NewPostgresDB(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Postgres persists station and user documents as versioned JSONB rows and
// fans committed station versions out through Redis pub/sub so watchers in
// any process observe every commit.
type Postgres struct {
	db     *sql.DB
	rdb    *redis.Client
	logger *zap.Logger
}

// NewPostgres wraps an open pool and redis client.
func NewPostgres(db *sql.DB, rdb *redis.Client, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, rdb: rdb, logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	id      TEXT PRIMARY KEY,
	doc     JSONB NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS users (
	id      TEXT PRIMARY KEY,
	doc     JSONB NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_stations_owner ON stations ((doc->>'ownerId'));
CREATE INDEX IF NOT EXISTS idx_stations_expires ON stations (((doc->'currentSession'->>'expiresAt')::timestamptz))
	WHERE doc->'currentSession'->>'expiresAt' IS NOT NULL;
`

// Migrate applies the document schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// GetStation returns the committed station document.
func (p *Postgres) GetStation(ctx context.Context, id string) (*models.Station, error) {
	const query = `SELECT doc, version FROM stations WHERE id = $1`
	return scanStation(p.db.QueryRowContext(ctx, query, id))
}

// ListStations returns all station documents.
func (p *Postgres) ListStations(ctx context.Context) ([]*models.Station, error) {
	const query = `SELECT doc, version FROM stations ORDER BY doc->>'createdAt'`
	return p.queryStations(ctx, query)
}

// ListStationsByOwner returns stations owned by ownerID.
func (p *Postgres) ListStationsByOwner(ctx context.Context, ownerID string) ([]*models.Station, error) {
	const query = `SELECT doc, version FROM stations WHERE doc->>'ownerId' = $1 ORDER BY doc->>'createdAt'`
	return p.queryStations(ctx, query, ownerID)
}

func (p *Postgres) queryStations(ctx context.Context, query string, args ...interface{}) ([]*models.Station, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []*models.Station
	for rows.Next() {
		var raw []byte
		var version int64
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, err
		}
		st, err := decodeStation(raw, version)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetUser returns the committed user document.
func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT doc, version FROM users WHERE id = $1`
	var raw []byte
	var version int64
	err := p.db.QueryRowContext(ctx, query, id).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("store: decode user: %w", err)
	}
	u.Version = version
	return &u, nil
}

// ExpiredSessionStations returns ids of stations whose session expiry is at
// or before now.
func (p *Postgres) ExpiredSessionStations(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT id FROM stations
		WHERE doc->'currentSession'->>'expiresAt' IS NOT NULL
		  AND (doc->'currentSession'->>'expiresAt')::timestamptz <= $1
	`
	rows, err := p.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type pgTxn struct {
	tx          *sql.Tx
	ctx         context.Context
	putStations map[string]*models.Station
	putUsers    map[string]*models.User
	delStations map[string]bool
}

func (t *pgTxn) Station(id string) (*models.Station, error) {
	if st, ok := t.putStations[id]; ok {
		return st.Clone(), nil
	}
	const query = `SELECT doc, version FROM stations WHERE id = $1`
	return scanStation(t.tx.QueryRowContext(t.ctx, query, id))
}

func (t *pgTxn) User(id string) (*models.User, error) {
	if u, ok := t.putUsers[id]; ok {
		return u.Clone(), nil
	}
	const query = `SELECT doc, version FROM users WHERE id = $1`
	var raw []byte
	var version int64
	err := t.tx.QueryRowContext(t.ctx, query, id).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("store: decode user: %w", err)
	}
	u.Version = version
	return &u, nil
}

func (t *pgTxn) PutStation(station *models.Station) {
	t.putStations[station.ID] = station.Clone()
}

func (t *pgTxn) PutUser(user *models.User) {
	t.putUsers[user.ID] = user.Clone()
}

func (t *pgTxn) DeleteStation(id string) {
	delete(t.putStations, id)
	t.delStations[id] = true
}

// Transact runs fn inside a SQL transaction. Writes carry the version the
// transaction read; the UPDATE's version guard turns a lost race into
// ErrConflict.
func (p *Postgres) Transact(ctx context.Context, fn func(Txn) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txn := &pgTxn{
		tx:          tx,
		ctx:         ctx,
		putStations: make(map[string]*models.Station),
		putUsers:    make(map[string]*models.User),
		delStations: make(map[string]bool),
	}

	if err := fn(txn); err != nil {
		tx.Rollback()
		return err
	}

	var events []StationEvent
	for id, st := range txn.putStations {
		newVersion, err := writeDoc(ctx, tx, "stations", id, st, st.Version)
		if err != nil {
			tx.Rollback()
			return err
		}
		committed := st.Clone()
		committed.Version = newVersion
		events = append(events, StationEvent{StationID: id, Version: newVersion, Station: committed})
	}
	for id, u := range txn.putUsers {
		if _, err := writeDoc(ctx, tx, "users", id, u, u.Version); err != nil {
			tx.Rollback()
			return err
		}
	}
	for id := range txn.delStations {
		res, err := tx.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id)
		if err != nil {
			tx.Rollback()
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			events = append(events, StationEvent{StationID: id, Deleted: true})
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	p.publish(ctx, events)
	return nil
}

// writeDoc inserts a fresh document (version 0) or updates an existing one
// guarded by the version the transaction read.
func writeDoc(ctx context.Context, tx *sql.Tx, table, id string, doc interface{}, readVersion int64) (int64, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("store: encode %s: %w", table, err)
	}

	if readVersion == 0 {
		query := fmt.Sprintf(`INSERT INTO %s (id, doc, version) VALUES ($1, $2, 1) ON CONFLICT (id) DO NOTHING`, table)
		res, err := tx.ExecContext(ctx, query, id, raw)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, ErrConflict
		}
		return 1, nil
	}

	query := fmt.Sprintf(`UPDATE %s SET doc = $2, version = version + 1 WHERE id = $1 AND version = $3`, table)
	res, err := tx.ExecContext(ctx, query, id, raw, readVersion)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrConflict
	}
	return readVersion + 1, nil
}

type wireEvent struct {
	StationID string          `json:"stationId"`
	Version   int64           `json:"version"`
	Deleted   bool            `json:"deleted,omitempty"`
	Doc       json.RawMessage `json:"doc,omitempty"`
}

func (p *Postgres) publish(ctx context.Context, events []StationEvent) {
	for _, ev := range events {
		msg := wireEvent{StationID: ev.StationID, Version: ev.Version, Deleted: ev.Deleted}
		if ev.Station != nil {
			raw, err := json.Marshal(ev.Station)
			if err != nil {
				p.logger.Error("failed to encode station event", zap.String("station_id", ev.StationID), zap.Error(err))
				continue
			}
			msg.Doc = raw
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			p.logger.Error("failed to encode station event", zap.String("station_id", ev.StationID), zap.Error(err))
			continue
		}
		if err := p.rdb.Publish(ctx, stationChannel, payload).Err(); err != nil {
			p.logger.Warn("failed to publish station event",
				zap.String("station_id", ev.StationID),
				zap.Int64("version", ev.Version),
				zap.Error(err))
		}
	}
}

// Watch subscribes to the station pub/sub channel and streams committed
// versions. Delivery is at-least-once; consumers drop duplicates by version.
func (p *Postgres) Watch(ctx context.Context, stationID string) (<-chan StationEvent, func(), error) {
	sub := p.rdb.Subscribe(ctx, stationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, err
	}

	out := make(chan StationEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.Warn("malformed station event", zap.Error(err))
				continue
			}
			if stationID != "" && ev.StationID != stationID {
				continue
			}
			event := StationEvent{StationID: ev.StationID, Version: ev.Version, Deleted: ev.Deleted}
			if len(ev.Doc) > 0 {
				st, err := decodeStation(ev.Doc, ev.Version)
				if err != nil {
					p.logger.Warn("malformed station doc in event", zap.Error(err))
					continue
				}
				event.Station = st
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { sub.Close() }
	return out, stop, nil
}

func scanStation(row *sql.Row) (*models.Station, error) {
	var raw []byte
	var version int64
	err := row.Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeStation(raw, version)
}

func decodeStation(raw []byte, version int64) (*models.Station, error) {
	var st models.Station
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("store: decode station: %w", err)
	}
	st.Version = version
	return &st, nil
}
