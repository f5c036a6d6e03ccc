// Package audit records security-relevant events. Appends are fire-and-forget:
// a failing or slow audit backend must never abort or delay the caller's
// primary operation.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"authcore/internal/audit/domain"
	auditrepo "authcore/internal/audit/repository"
)

// appendTimeout bounds a single detached append so a hung backend cannot pile
// up goroutines indefinitely.
const appendTimeout = 5 * time.Second

// Sink is the append-only event recorder consumed by services and guards.
// Append is best-effort: implementations swallow failures.
type Sink interface {
	Append(ctx context.Context, e *domain.Event)
}

// Logger implements Sink on the audit repository. Appends run in a detached
// goroutine with their own timeout so request cancellation cannot abort an
// in-flight write and a slow store cannot block the request path.
type Logger struct {
	repo auditrepo.Repository
	nowF func() time.Time
	sync bool // test-only: append inline instead of a goroutine
}

// NewLogger returns a Sink that persists to repo. repo may be nil; appends
// then become no-ops, so callers never need a nil check.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo, nowF: time.Now}
}

// Append records one event. Missing ID and OccurredAt are filled in. The
// passed ctx is only consulted for values, never for cancellation; failures
// are logged and swallowed.
func (l *Logger) Append(ctx context.Context, e *domain.Event) {
	if l.repo == nil || e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.nowF().UTC()
	}
	write := func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := l.repo.Create(writeCtx, e); err != nil {
			log.Printf("audit: failed to append %s event: %v", e.Kind, err)
		}
	}
	if l.sync {
		write()
		return
	}
	go write()
}
