package repository

import (
	"context"
	"database/sql"

	"authcore/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit event repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the event. The event must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, kind, subject_id, client_fingerprint_hash, client_agent, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.Kind), nullIfEmpty(e.SubjectID), nullIfEmpty(e.ClientFingerprintHash),
		nullIfEmpty(e.ClientAgent), nullIfEmpty(e.Metadata), e.OccurredAt)
	return err
}

// ListBySubject returns events for the subject, newest first, paginated by
// limit and offset.
func (r *PostgresRepository) ListBySubject(ctx context.Context, subjectID string, limit, offset int32) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, subject_id, client_fingerprint_hash, client_agent, metadata, occurred_at
		 FROM audit_events WHERE subject_id = $1
		 ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`,
		subjectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var (
			e                      domain.Event
			kind                   string
			subID, fp, agent, meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &kind, &subID, &fp, &agent, &meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Kind = domain.Kind(kind)
		e.SubjectID = subID.String
		e.ClientFingerprintHash = fp.String
		e.ClientAgent = agent.String
		e.Metadata = meta.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
