package domain

import "time"

// Session is one opaque-token session. The ID carries no claims; all state
// lives server-side. Lifecycle: ACTIVE -> REVOKED (terminal) or
// ACTIVE -> EXPIRED (terminal, implicit via TTL).
type Session struct {
	ID                    string
	SubjectID             string
	CreatedAt             time.Time
	ExpiresAt             time.Time
	RevokedAt             *time.Time // nil when not revoked
	ClientFingerprintHash string     // salted hash of the client IP; raw IP is never stored
	ClientAgent           string
}

// Expired reports whether the session's lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Principal is the authenticated identity a guard resolves from a session.
type Principal struct {
	SubjectID string
	SessionID string
}

// Summary is the listing view of a session, suitable for "your active
// sessions" surfaces.
type Summary struct {
	ID                    string
	CreatedAt             time.Time
	ExpiresAt             time.Time
	Revoked               bool
	ClientFingerprintHash string
	ClientAgent           string
}

// ClientContext carries the request attributes recorded on every
// session-affecting call. Opaque to the core beyond fingerprinting.
type ClientContext struct {
	IP        string
	UserAgent string
}
