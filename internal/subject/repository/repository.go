package repository

import (
	"context"

	"authcore/internal/subject/domain"
)

// Repository defines persistence for subjects, their credentials, and their
// role memberships.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Subject, error)
	GetByEmail(ctx context.Context, email string) (*domain.Subject, error)
	Create(ctx context.Context, s *domain.Subject) error
	SetStatus(ctx context.Context, id string, status domain.Status) error

	GetCredential(ctx context.Context, subjectID string) (*domain.Credential, error)
	UpsertCredential(ctx context.Context, c *domain.Credential) error

	GetRoles(ctx context.Context, subjectID string) ([]string, error)
	GrantRole(ctx context.Context, subjectID, role string) error
	RevokeRole(ctx context.Context, subjectID, role string) error
}
