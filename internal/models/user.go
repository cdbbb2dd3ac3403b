package models

import "time"

// User is a device-scoped identity. CurrentWaitlists is the set of station
// ids where the user currently holds a queue slot or the active session.
type User struct {
	ID               string    `json:"id"`
	FCMToken         string    `json:"fcmToken,omitempty"`
	CurrentWaitlists []string  `json:"currentWaitlists"`
	CreatedAt        time.Time `json:"createdAt"`

	Version int64 `json:"-"`
}

// AddWaitlist records membership in stationID's waitlist. Idempotent.
func (u *User) AddWaitlist(stationID string) {
	for _, id := range u.CurrentWaitlists {
		if id == stationID {
			return
		}
	}
	u.CurrentWaitlists = append(u.CurrentWaitlists, stationID)
}

// RemoveWaitlist drops stationID from the membership set. No-op if absent.
func (u *User) RemoveWaitlist(stationID string) {
	kept := u.CurrentWaitlists[:0]
	for _, id := range u.CurrentWaitlists {
		if id != stationID {
			kept = append(kept, id)
		}
	}
	u.CurrentWaitlists = kept
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	cp := *u
	cp.CurrentWaitlists = append([]string(nil), u.CurrentWaitlists...)
	return &cp
}
