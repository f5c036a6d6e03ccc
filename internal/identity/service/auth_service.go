package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/security"
	sessiondomain "authcore/internal/session/domain"
	subjectdomain "authcore/internal/subject/domain"
)

// Sentinel errors for the auth service; handlers map them to HTTP statuses.
// ErrInvalidCredentials covers both "subject not found" and "password wrong":
// the two must stay textually identical at every boundary.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
)

const credentialAlgorithm = "argon2id"

// SubjectRepo is the minimal subject repository needed by the auth service.
type SubjectRepo interface {
	GetByID(ctx context.Context, id string) (*subjectdomain.Subject, error)
	GetByEmail(ctx context.Context, email string) (*subjectdomain.Subject, error)
	Create(ctx context.Context, s *subjectdomain.Subject) error
	GetCredential(ctx context.Context, subjectID string) (*subjectdomain.Credential, error)
	UpsertCredential(ctx context.Context, c *subjectdomain.Credential) error
}

// Sessions is the minimal session manager surface needed by the auth service.
type Sessions interface {
	Create(ctx context.Context, subjectID string, client sessiondomain.ClientContext) (string, error)
	Revoke(ctx context.Context, id string) error
	RevokeAll(ctx context.Context, subjectID string) error
	ListForSubject(ctx context.Context, subjectID string) ([]sessiondomain.Summary, error)
}

// Sink is the audit sink consumed by the auth service; appends are
// fire-and-forget.
type Sink interface {
	Append(ctx context.Context, e *auditdomain.Event)
}

// AuthService implements password register, login, logout, and password
// change over opaque cookie sessions.
type AuthService struct {
	subjects SubjectRepo
	sessions Sessions
	hasher   *security.PasswordHasher
	audit    Sink
	ipSecret string
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(subjects SubjectRepo, sessions Sessions, hasher *security.PasswordHasher, audit Sink, ipSecret string) *AuthService {
	return &AuthService{
		subjects: subjects,
		sessions: sessions,
		hasher:   hasher,
		audit:    audit,
		ipSecret: ipSecret,
	}
}

// Register creates a subject and its credential for the given email and
// password. Returns the new subject's id.
func (s *AuthService) Register(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}
	existing, err := s.subjects.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	subject := &subjectdomain.Subject{
		ID:        uuid.New().String(),
		Email:     email,
		Status:    subjectdomain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := subject.Validate(); err != nil {
		return "", err
	}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return "", err
	}
	if err := s.subjects.UpsertCredential(ctx, &subjectdomain.Credential{
		SubjectID: subject.ID,
		Hash:      hashed,
		Algorithm: credentialAlgorithm,
		UpdatedAt: now,
	}); err != nil {
		return "", err
	}
	return subject.ID, nil
}

// Login authenticates with email/password and creates a session, returning
// the opaque session id for cookie issuance. Verification always runs, even
// when the subject or credential is missing: the dummy hash substitutes so
// that subject existence cannot be inferred from timing or control flow, and
// every failure is the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string, client sessiondomain.ClientContext) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	subject, err := s.subjects.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	var cred *subjectdomain.Credential
	if subject != nil {
		cred, err = s.subjects.GetCredential(ctx, subject.ID)
		if err != nil {
			return "", err
		}
	}
	hash := s.hasher.DummyHash()
	if cred != nil && cred.Hash != "" {
		hash = cred.Hash
	}
	verified := s.hasher.Verify(hash, password)
	if subject == nil || !subject.Active() || cred == nil || !verified {
		s.audit.Append(ctx, &auditdomain.Event{
			Kind:                  auditdomain.KindLoginFailure,
			ClientFingerprintHash: security.FingerprintIP(client.IP, s.ipSecret),
			ClientAgent:           client.UserAgent,
		})
		return "", ErrInvalidCredentials
	}

	sessionID, err := s.sessions.Create(ctx, subject.ID, client)
	if err != nil {
		return "", err
	}
	s.audit.Append(ctx, &auditdomain.Event{
		Kind:                  auditdomain.KindLoginSuccess,
		SubjectID:             subject.ID,
		ClientFingerprintHash: security.FingerprintIP(client.IP, s.ipSecret),
		ClientAgent:           client.UserAgent,
	})
	return sessionID, nil
}

// Logout revokes the session. Idempotent; logging out an already-gone session
// succeeds silently.
func (s *AuthService) Logout(ctx context.Context, sessionID, subjectID string, client sessiondomain.ClientContext) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.audit.Append(ctx, &auditdomain.Event{
		Kind:                  auditdomain.KindLogout,
		SubjectID:             subjectID,
		ClientFingerprintHash: security.FingerprintIP(client.IP, s.ipSecret),
		ClientAgent:           client.UserAgent,
	})
	return nil
}

// RevokeSession revokes one of the subject's own sessions by id. A session
// the subject does not own is ignored without error; existence of other
// subjects' sessions is never disclosed.
func (s *AuthService) RevokeSession(ctx context.Context, subjectID, sessionID string, client sessiondomain.ClientContext) error {
	if sessionID == "" {
		return nil
	}
	summaries, err := s.sessions.ListForSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	owned := false
	for _, sum := range summaries {
		if sum.ID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.audit.Append(ctx, &auditdomain.Event{
		Kind:                  auditdomain.KindSessionRevoked,
		SubjectID:             subjectID,
		ClientFingerprintHash: security.FingerprintIP(client.IP, s.ipSecret),
		ClientAgent:           client.UserAgent,
	})
	return nil
}

// ChangePassword verifies the current password, stores a new hash, and
// revokes every session the subject holds; the client must log in again.
// A wrong current password is the same ErrInvalidCredentials as a failed
// login.
func (s *AuthService) ChangePassword(ctx context.Context, subjectID, current, next string, client sessiondomain.ClientContext) error {
	if err := validatePassword(next); err != nil {
		return err
	}
	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		return err
	}
	var cred *subjectdomain.Credential
	if subject != nil {
		cred, err = s.subjects.GetCredential(ctx, subjectID)
		if err != nil {
			return err
		}
	}
	hash := s.hasher.DummyHash()
	if cred != nil && cred.Hash != "" {
		hash = cred.Hash
	}
	verified := s.hasher.Verify(hash, current)
	if subject == nil || !subject.Active() || cred == nil || !verified {
		return ErrInvalidCredentials
	}

	hashed, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.subjects.UpsertCredential(ctx, &subjectdomain.Credential{
		SubjectID: subjectID,
		Hash:      hashed,
		Algorithm: credentialAlgorithm,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, subjectID); err != nil {
		return err
	}
	s.audit.Append(ctx, &auditdomain.Event{
		Kind:                  auditdomain.KindPasswordChanged,
		SubjectID:             subjectID,
		ClientFingerprintHash: security.FingerprintIP(client.IP, s.ipSecret),
		ClientAgent:           client.UserAgent,
	})
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	return nil
}
