package domain

import (
	"errors"
	"time"
)

// Subject is an account that can own sessions and hold roles.
type Subject struct {
	ID        string
	Email     string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Active reports whether the subject may authenticate and hold live sessions.
func (s *Subject) Active() bool {
	return s != nil && s.Status == StatusActive
}

// Validate validates the subject for persistence. Returns an error describing
// the first validation failure.
func (s *Subject) Validate() error {
	if s.Email == "" {
		return errors.New("email is required")
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	return nil
}

// Credential is a stored password hash. The hash encoding is opaque to
// everything except the password hasher; Algorithm records the scheme for
// future migrations.
type Credential struct {
	SubjectID string
	Hash      string
	Algorithm string
	UpdatedAt time.Time
}
