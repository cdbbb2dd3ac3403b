// Package scheduler provides the one-shot external timer behind session
// expiration: schedule a callback for a key at a wall-clock instant, receive
// it at-least-once after that instant. Failed handlers are redelivered a
// bounded number of times with backoff.
package scheduler

import (
	"context"
	"time"
)

// Dispatch retry bounds for failing handlers.
const (
	MaxAttempts  = 3
	RetryBackoff = 10 * time.Second
)

// Handler consumes a fired task. A non-nil error triggers redelivery until
// MaxAttempts is reached.
type Handler func(ctx context.Context, key string, payload []byte) error

// Scheduler schedules a one-shot callback for key at when. Scheduling the
// same key again replaces the previous instant.
type Scheduler interface {
	Schedule(ctx context.Context, key string, when time.Time, payload []byte) error
}
