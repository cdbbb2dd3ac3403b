package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory fires tasks from in-process timers. Not durable; used by tests and
// single-node runs where losing a pending timer on restart is acceptable
// (the reconciliation sweep catches what a lost timer misses).
type Memory struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	handler Handler
	logger  *zap.Logger
	backoff time.Duration
}

// NewMemory builds the in-process scheduler.
func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{
		timers:  make(map[string]*time.Timer),
		logger:  logger,
		backoff: RetryBackoff,
	}
}

// Handle registers the dispatch handler. Must be called before Schedule.
func (m *Memory) Handle(h Handler) {
	m.handler = h
}

// Schedule arms a timer for key at when, replacing any earlier timer.
func (m *Memory) Schedule(_ context.Context, key string, when time.Time, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[key]; ok {
		t.Stop()
	}

	delay := time.Until(when)
	if delay < 0 {
		delay = 0
	}
	m.timers[key] = time.AfterFunc(delay, func() {
		m.fire(key, payload, 1)
	})
	return nil
}

func (m *Memory) fire(key string, payload []byte, attempt int) {
	m.mu.Lock()
	delete(m.timers, key)
	handler := m.handler
	m.mu.Unlock()

	if handler == nil {
		m.logger.Error("scheduler has no handler registered", zap.String("key", key))
		return
	}

	if err := handler(context.Background(), key, payload); err != nil {
		if attempt >= MaxAttempts {
			m.logger.Error("scheduler task dropped after retries",
				zap.String("key", key),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}
		m.logger.Warn("scheduler task failed, redelivering",
			zap.String("key", key),
			zap.Int("attempts", attempt),
			zap.Error(err))
		m.mu.Lock()
		m.timers[key] = time.AfterFunc(m.backoff, func() {
			m.fire(key, payload, attempt+1)
		})
		m.mu.Unlock()
	}
}

// Stop cancels all pending timers.
func (m *Memory) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
}
