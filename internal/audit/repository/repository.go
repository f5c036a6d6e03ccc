package repository

import (
	"context"

	"authcore/internal/audit/domain"
)

// Repository defines persistence for audit events.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	ListBySubject(ctx context.Context, subjectID string, limit, offset int32) ([]*domain.Event, error)
}
