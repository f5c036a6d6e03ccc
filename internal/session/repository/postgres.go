package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/session/domain"
	subjectdomain "authcore/internal/subject/domain"
)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a session store that uses the given db for persistence.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create persists the session record. The session must have ID set.
func (r *PostgresStore) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, subject_id, created_at, expires_at, revoked_at, client_fingerprint_hash, client_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.SubjectID, s.CreatedAt, s.ExpiresAt, timeToNullTime(s.RevokedAt),
		s.ClientFingerprintHash, s.ClientAgent)
	return err
}

// GetWithSubjectStatus returns the session and the owning subject's active
// flag in a single joined read, or (nil, false) when the session is missing.
// It returns an error only for database failures.
func (r *PostgresStore) GetWithSubjectStatus(ctx context.Context, id string) (*domain.Session, bool, error) {
	var (
		s         domain.Session
		revokedAt sql.NullTime
		status    string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.subject_id, s.created_at, s.expires_at, s.revoked_at,
		        s.client_fingerprint_hash, s.client_agent, u.status
		 FROM sessions s
		 JOIN subjects u ON u.id = s.subject_id
		 WHERE s.id = $1`, id).
		Scan(&s.ID, &s.SubjectID, &s.CreatedAt, &s.ExpiresAt, &revokedAt,
			&s.ClientFingerprintHash, &s.ClientAgent, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	s.RevokedAt = nullTimeToPtr(revokedAt)
	return &s, subjectdomain.Status(status) == subjectdomain.StatusActive, nil
}

// Revoke marks the session as revoked. Revoking a missing or already-revoked
// session is not an error.
func (r *PostgresStore) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, time.Now().UTC())
	return err
}

// RevokeAllBySubject marks every non-revoked session owned by subjectID as revoked.
func (r *PostgresStore) RevokeAllBySubject(ctx context.Context, subjectID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE subject_id = $1 AND revoked_at IS NULL`,
		subjectID, time.Now().UTC())
	return err
}

// ListBySubject returns all session records for the subject, newest first.
func (r *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject_id, created_at, expires_at, revoked_at, client_fingerprint_hash, client_agent
		 FROM sessions WHERE subject_id = $1 ORDER BY created_at DESC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		var (
			s         domain.Session
			revokedAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.SubjectID, &s.CreatedAt, &s.ExpiresAt, &revokedAt,
			&s.ClientFingerprintHash, &s.ClientAgent); err != nil {
			return nil, err
		}
		s.RevokedAt = nullTimeToPtr(revokedAt)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// DeleteExpiredBefore removes session records whose expiry predates cutoff.
func (r *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
