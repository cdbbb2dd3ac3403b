package models

import (
	"sort"
	"time"
)

// Station modes.
const (
	ModeManual = "manual"
	ModeTimed  = "timed"
)

// Attendee statuses.
const (
	StatusWaiting   = "waiting"
	StatusAttending = "attending"
	StatusRemoved   = "removed"
)

// Attendee is a user's queue membership record for a station.
type Attendee struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joinedAt"`
	// Seq is a per-station monotonic counter assigned at join. It breaks
	// ties between attendees with equal JoinedAt.
	Seq int64 `json:"seq"`
}

// CurrentSession is the single active occupancy of a station.
// ExpiresAt is set only for timed stations.
type CurrentSession struct {
	UserID    string     `json:"userId"`
	StartedAt time.Time  `json:"startedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the session's expiry instant has been reached.
// A session exactly at its expiry instant counts as expired. Manual
// sessions never expire.
func (s *CurrentSession) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return s.ExpiresAt.UnixMilli() <= now.UnixMilli()
}

// Station is a shared resource with a waitlist and at most one active session.
type Station struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name"`
	OwnerID                string          `json:"ownerId"`
	IsActive               bool            `json:"isActive"`
	SessionDurationSeconds int             `json:"sessionDurationSeconds"`
	Mode                   string          `json:"mode"`
	Attendees              []Attendee      `json:"attendees"`
	CurrentSession         *CurrentSession `json:"currentSession,omitempty"`
	JoinSeq                int64           `json:"joinSeq"`
	CreatedAt              time.Time       `json:"createdAt"`

	// Version is assigned by the store and increments on every commit.
	// It is not part of the document body.
	Version int64 `json:"-"`
}

// waiting returns the waiting attendees ordered ascending by (JoinedAt, Seq).
func (s *Station) waiting() []Attendee {
	out := make([]Attendee, 0, len(s.Attendees))
	for _, a := range s.Attendees {
		if a.Status == StatusWaiting {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].JoinedAt.UnixMilli(), out[j].JoinedAt.UnixMilli()
		if ti != tj {
			return ti < tj
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Position returns the 1-based rank of userID among waiting attendees, or 0
// if the user is not waiting.
func (s *Station) Position(userID string) int {
	for i, a := range s.waiting() {
		if a.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// IsFront reports whether userID holds position 1.
func (s *Station) IsFront(userID string) bool {
	return s.Position(userID) == 1
}

// NextInLine returns the attendee at position 1, or false when the queue of
// waiting attendees is empty.
func (s *Station) NextInLine() (Attendee, bool) {
	w := s.waiting()
	if len(w) == 0 {
		return Attendee{}, false
	}
	return w[0], true
}

// FindAttendee returns the attendee record for userID regardless of status.
func (s *Station) FindAttendee(userID string) (Attendee, bool) {
	for _, a := range s.Attendees {
		if a.UserID == userID {
			return a, true
		}
	}
	return Attendee{}, false
}

// RemoveAttendee drops every attendee record for userID and reports whether
// any was removed.
func (s *Station) RemoveAttendee(userID string) bool {
	kept := s.Attendees[:0]
	removed := false
	for _, a := range s.Attendees {
		if a.UserID == userID {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	s.Attendees = kept
	return removed
}

// Clone returns a deep copy; watchers and the in-memory store hand out copies
// so no caller can mutate committed state.
func (s *Station) Clone() *Station {
	cp := *s
	cp.Attendees = append([]Attendee(nil), s.Attendees...)
	if s.CurrentSession != nil {
		sess := *s.CurrentSession
		if s.CurrentSession.ExpiresAt != nil {
			exp := *s.CurrentSession.ExpiresAt
			sess.ExpiresAt = &exp
		}
		cp.CurrentSession = &sess
	}
	return &cp
}
