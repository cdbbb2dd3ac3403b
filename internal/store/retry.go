package store

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const baseBackoff = 10 * time.Millisecond

// OnConflict, when set, is invoked once per observed transaction conflict.
// The application wires it to a metrics counter.
var OnConflict func()

// RunTransact wraps Store.Transact with bounded optimistic-retry. Conflicts
// are retried up to attempts times with jittered exponential backoff; any
// other error aborts immediately. The final conflict, if retries exhaust, is
// returned as ErrConflict for the caller to surface as a generic failure.
func RunTransact(ctx context.Context, s Store, attempts int, fn func(Txn) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(baseBackoff)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = s.Transact(ctx, fn)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if OnConflict != nil {
			OnConflict()
		}
	}
	return err
}
