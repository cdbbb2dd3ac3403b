package service

import "errors"

// Domain failures returned to direct callers. Transaction conflicts are
// retried internally and only escape as store.ErrConflict when retries
// exhaust.
var (
	// ErrNotInQueue means a session start was attempted by a user who holds
	// no attendee record.
	ErrNotInQueue = errors.New("user is not in the waitlist")
	// ErrStationBusy means a non-stale session is already active.
	ErrStationBusy = errors.New("station is currently in use")
	// ErrNoActiveSession means an end was attempted with nothing to clear.
	ErrNoActiveSession = errors.New("no active session to end")
	// ErrInactiveStation means the station is not accepting joiners.
	ErrInactiveStation = errors.New("station is not active")
	// ErrInvalidMode rejects modes other than manual and timed.
	ErrInvalidMode = errors.New("mode must be manual or timed")
)
