package domain

import "time"

// Kind tags an audit event. Append-only vocabulary; never reuse a value.
type Kind string

const (
	KindLoginSuccess       Kind = "LOGIN_SUCCESS"
	KindLoginFailure       Kind = "LOGIN_FAILURE"
	KindLogout             Kind = "LOGOUT"
	KindSessionRevoked     Kind = "SESSION_REVOKED"
	KindSessionsRevokedAll Kind = "SESSIONS_REVOKED_ALL"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindCSRFRejected       Kind = "CSRF_REJECTED"
	KindAccessDenied       Kind = "ACCESS_DENIED"
	KindPasswordChanged    Kind = "PASSWORD_CHANGED"
)

// Event is one append-only audit record. This core never mutates or deletes
// events. SubjectID is empty for events with no resolved subject (e.g. a
// failed login for an unknown email).
type Event struct {
	ID                    string
	Kind                  Kind
	SubjectID             string
	ClientFingerprintHash string
	ClientAgent           string
	Metadata              string
	OccurredAt            time.Time
}
