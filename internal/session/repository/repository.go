package repository

import (
	"context"
	"time"

	"authcore/internal/session/domain"
)

// Store defines durable persistence for session records. The durable store is
// authoritative for enumeration and audit; the cache is authoritative for
// liveness. GetWithSubjectStatus must read the session row and the owning
// subject's active flag inside a single atomicity boundary so the combined
// check is race-free against a concurrent revoke.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	// GetWithSubjectStatus returns the session for id together with whether
	// its owning subject is active, or (nil, false) if the session does not
	// exist. It returns an error only for database failures.
	GetWithSubjectStatus(ctx context.Context, id string) (*domain.Session, bool, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllBySubject(ctx context.Context, subjectID string) error
	ListBySubject(ctx context.Context, subjectID string) ([]*domain.Session, error)
	// DeleteExpiredBefore removes durable records whose expiry predates
	// cutoff, returning the number deleted. Durable records outlive cache
	// expiry for audit; this is the explicit prune.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
