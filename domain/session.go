package domain

import "time"

// Session lifetimes applied when a record is created or extended.
const (
	IdleTTL     = 30 * time.Minute
	RememberTTL = 7 * 24 * time.Hour
)

// Record is the persisted session: one per store, written and cleared as a unit.
type Record struct {
	Token     string
	Identity  Identity
	SessionID string
	// ExpiresAt is an absolute epoch-millisecond timestamp.
	ExpiresAt int64
	Durable   bool
}

// IsExpired reports whether the record is past its expiry at the reference time.
func (r *Record) IsExpired(reference time.Time) bool {
	if r == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return reference.UnixMilli() > r.ExpiresAt
}

// ExpiryAt computes the expiry timestamp for a record created or renewed at now.
func ExpiryAt(now time.Time, durable bool, idle, remember time.Duration) int64 {
	if durable {
		return now.Add(remember).UnixMilli()
	}
	return now.Add(idle).UnixMilli()
}

// State is the lifecycle state of a tab's session.
type State int

const (
	StateUnauthenticated State = iota
	StateRestoring
	StateAuthenticated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only identity view published to the rest of the application.
type Snapshot struct {
	State         State     `json:"-"`
	StateName     string    `json:"state"`
	Identity      *Identity `json:"user"`
	SessionID     string    `json:"session_id,omitempty"`
	Durable       bool      `json:"remember_me"`
	ExpiresAt     int64     `json:"expires_at,omitempty"`
	Authenticated bool      `json:"is_logged_in"`
	IsAdmin       bool      `json:"is_admin"`
	IsPartner     bool      `json:"is_partner"`
	Loading       bool      `json:"loading"`
}

// NewSnapshot derives the published view from a state and the active record, if any.
func NewSnapshot(state State, rec *Record, loading bool) Snapshot {
	snap := Snapshot{
		State:     state,
		StateName: state.String(),
		Loading:   loading,
	}
	if state != StateAuthenticated || rec == nil {
		return snap
	}
	identity := rec.Identity
	snap.Identity = &identity
	snap.SessionID = rec.SessionID
	snap.Durable = rec.Durable
	snap.ExpiresAt = rec.ExpiresAt
	snap.Authenticated = true
	snap.IsAdmin = identity.IsAdmin()
	snap.IsPartner = identity.IsPartner()
	return snap
}
