package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"taplist/internal/models"
	"taplist/internal/store"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPingInterval = 30 * time.Second
	watchPongWait     = 60 * time.Second
)

// WatchHandler streams committed station snapshots over a websocket.
type WatchHandler struct {
	store    store.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWatchHandler builds the handler.
func NewWatchHandler(s store.Store, logger *zap.Logger) *WatchHandler {
	return &WatchHandler{
		store:  s,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type watchFrame struct {
	StationID string          `json:"stationId"`
	Version   int64           `json:"version"`
	Deleted   bool            `json:"deleted,omitempty"`
	Station   *models.Station `json:"station,omitempty"`
}

// Watch handles GET /stations/{stationID}/watch. The initial frame carries
// the current snapshot; each commit afterwards produces one more frame.
func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")

	station, err := h.store.GetStation(r.Context(), stationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	events, stop, err := h.store.Watch(r.Context(), stationID)
	if err != nil {
		h.logger.Error("watch subscribe failed", zap.String("station_id", stationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain the reader so close and pong frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(watchPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.writeFrame(conn, watchFrame{StationID: stationID, Version: station.Version, Station: station}); err != nil {
		return
	}

	ticker := time.NewTicker(watchPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			frame := watchFrame{StationID: ev.StationID, Version: ev.Version, Deleted: ev.Deleted, Station: ev.Station}
			if err := h.writeFrame(conn, frame); err != nil {
				return
			}
			if ev.Deleted {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WatchHandler) writeFrame(conn *websocket.Conn, frame watchFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to encode watch frame", zap.Error(err))
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
