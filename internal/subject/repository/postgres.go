package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/subject/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a subject repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the subject for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Subject, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, status, created_at, updated_at FROM subjects WHERE id = $1`, id)
	return scanSubject(row)
}

// GetByEmail returns the subject with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Subject, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, status, created_at, updated_at FROM subjects WHERE email = $1`, email)
	return scanSubject(row)
}

// Create persists the subject. The subject must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Subject) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (id, email, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.Email, string(s.Status), s.CreatedAt, s.UpdatedAt)
	return err
}

// SetStatus updates the subject's status. Updating a missing subject is not an error.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status domain.Status) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC())
	return err
}

// GetCredential returns the stored credential for subjectID, or nil if none exists.
func (r *PostgresRepository) GetCredential(ctx context.Context, subjectID string) (*domain.Credential, error) {
	var c domain.Credential
	err := r.db.QueryRowContext(ctx,
		`SELECT subject_id, hash, algorithm, updated_at FROM credentials WHERE subject_id = $1`,
		subjectID).Scan(&c.SubjectID, &c.Hash, &c.Algorithm, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpsertCredential inserts or replaces the subject's credential.
func (r *PostgresRepository) UpsertCredential(ctx context.Context, c *domain.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (subject_id, hash, algorithm, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subject_id) DO UPDATE SET hash = $2, algorithm = $3, updated_at = $4`,
		c.SubjectID, c.Hash, c.Algorithm, c.UpdatedAt)
	return err
}

// GetRoles returns the subject's role names. A subject with no roles yields an
// empty slice, not an error.
func (r *PostgresRepository) GetRoles(ctx context.Context, subjectID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role FROM subject_roles WHERE subject_id = $1 ORDER BY role`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GrantRole adds a role to the subject. Granting an already-held role is a no-op.
func (r *PostgresRepository) GrantRole(ctx context.Context, subjectID, role string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subject_roles (subject_id, role, granted_at) VALUES ($1, $2, $3)
		 ON CONFLICT (subject_id, role) DO NOTHING`,
		subjectID, role, time.Now().UTC())
	return err
}

// RevokeRole removes a role from the subject. Revoking a role the subject does
// not hold is not an error.
func (r *PostgresRepository) RevokeRole(ctx context.Context, subjectID, role string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM subject_roles WHERE subject_id = $1 AND role = $2`, subjectID, role)
	return err
}

func scanSubject(row *sql.Row) (*domain.Subject, error) {
	var (
		s      domain.Subject
		status string
	)
	err := row.Scan(&s.ID, &s.Email, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Status = domain.Status(status)
	return &s, nil
}
