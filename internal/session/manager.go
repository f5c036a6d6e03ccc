// Package session issues, resolves, and revokes opaque server-side sessions.
// Liveness lives in the shared cache; a durable store, when configured,
// mirrors every session for enumeration, audit, and revocation checks.
package session

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"authcore/internal/cache"
	"authcore/internal/security"
	"authcore/internal/session/domain"
	"authcore/internal/session/repository"
)

// KeyPrefix namespaces session entries in the shared cache. No other
// component writes keys under this prefix.
const KeyPrefix = "sess:"

// cacheRecord is the JSON shape persisted in the cache under sess:<id>.
type cacheRecord struct {
	SubjectID             string    `json:"subjectId"`
	CreatedAt             time.Time `json:"createdAt"`
	ExpiresAt             time.Time `json:"expiresAt"`
	ClientFingerprintHash string    `json:"clientFingerprintHash"`
	ClientAgent           string    `json:"clientAgent"`
}

// Manager creates, fetches, and revokes sessions. All operations are
// fail-closed: any uncertainty about liveness (cache unreachable, malformed
// record, durable/cache disagreement) resolves to "not authenticated".
type Manager struct {
	cache    cache.Cache
	store    repository.Store // nil when no durable store is configured
	ttl      time.Duration
	ipSecret string
	nowF     func() time.Time
}

// NewManager returns a session manager. store may be nil; revocation listing
// and the durable re-check in ResolvePrincipal then degrade to cache-only
// behavior, and RevokeAll falls back to an O(n) cache scan.
func NewManager(c cache.Cache, store repository.Store, ttl time.Duration, ipSecret string) *Manager {
	return &Manager{cache: c, store: store, ttl: ttl, ipSecret: ipSecret, nowF: time.Now}
}

// SetClock overrides the manager's clock; test-only.
func (m *Manager) SetClock(now func() time.Time) { m.nowF = now }

// Create issues a new session for subjectID, writes it to the cache with TTL
// equal to the full remaining lifetime, and mirrors it to the durable store.
// The mirror write is best-effort: its failure is logged and does not fail the
// create. Returns the opaque session ID for cookie issuance.
func (m *Manager) Create(ctx context.Context, subjectID string, client domain.ClientContext) (string, error) {
	id := security.NewSessionToken()
	now := m.nowF().UTC()
	rec := cacheRecord{
		SubjectID:             subjectID,
		CreatedAt:             now,
		ExpiresAt:             now.Add(m.ttl),
		ClientFingerprintHash: security.FingerprintIP(client.IP, m.ipSecret),
		ClientAgent:           client.UserAgent,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	// The cache entry's TTL must be at least the durable record's remaining
	// lifetime; both are set from the same expiry here.
	if err := m.cache.SetWithTTL(ctx, KeyPrefix+id, string(payload), m.ttl); err != nil {
		return "", err
	}
	if m.store != nil {
		if err := m.store.Create(ctx, &domain.Session{
			ID:                    id,
			SubjectID:             rec.SubjectID,
			CreatedAt:             rec.CreatedAt,
			ExpiresAt:             rec.ExpiresAt,
			ClientFingerprintHash: rec.ClientFingerprintHash,
			ClientAgent:           rec.ClientAgent,
		}); err != nil {
			log.Printf("session: durable mirror write failed: %v", err)
		}
	}
	return id, nil
}

// Get returns the cached session for id, or nil when absent. A malformed
// cached value is treated as absent, never as an error that propagates.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, nil
	}
	payload, ok, err := m.cache.Get(ctx, KeyPrefix+id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rec cacheRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil || rec.SubjectID == "" {
		return nil, nil
	}
	s := &domain.Session{
		ID:                    id,
		SubjectID:             rec.SubjectID,
		CreatedAt:             rec.CreatedAt,
		ExpiresAt:             rec.ExpiresAt,
		ClientFingerprintHash: rec.ClientFingerprintHash,
		ClientAgent:           rec.ClientAgent,
	}
	if s.Expired(m.nowF()) {
		return nil, nil
	}
	return s, nil
}

// ResolvePrincipal is the stronger check used by guards. Beyond the cache
// lookup it re-validates liveness against the durable store in a single
// atomic read of the session row and the owning subject's active flag. This
// closes the race where a revoke has landed durably but not yet in the cache.
// A nil principal means not authenticated; any backend error also yields a
// nil principal (fail-closed).
func (m *Manager) ResolvePrincipal(ctx context.Context, id string) (*domain.Principal, error) {
	s, err := m.Get(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	if m.store != nil {
		rec, subjectActive, err := m.store.GetWithSubjectStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.RevokedAt != nil || !subjectActive {
			return nil, nil
		}
	}
	return &domain.Principal{SubjectID: s.SubjectID, SessionID: id}, nil
}

// Revoke deletes the cache entry and, best-effort, marks the durable record
// revoked. Idempotent: revoking an already-gone session is not an error.
func (m *Manager) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.cache.Delete(ctx, KeyPrefix+id); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.Revoke(ctx, id); err != nil {
			log.Printf("session: durable revoke failed for %s...: %v", security.Digest(id)[:8], err)
		}
	}
	return nil
}

// RevokeAll revokes every session owned by subjectID. With a durable store,
// durable revocation is the authoritative first step; cache deletion follows,
// and a stale cache entry left by a partial failure is still rejected on next
// use because ResolvePrincipal re-checks the durable store. Without a durable
// store this falls back to scanning every live session in the cache, which
// is O(n); configure a durable store to keep this bounded.
func (m *Manager) RevokeAll(ctx context.Context, subjectID string) error {
	if m.store != nil {
		records, err := m.store.ListBySubject(ctx, subjectID)
		if err != nil {
			return err
		}
		if err := m.store.RevokeAllBySubject(ctx, subjectID); err != nil {
			return err
		}
		keys := make([]string, 0, len(records))
		for _, rec := range records {
			keys = append(keys, KeyPrefix+rec.ID)
		}
		if err := m.cache.Delete(ctx, keys...); err != nil {
			log.Printf("session: cache cleanup after revoke-all failed: %v", err)
		}
		return nil
	}

	keys, err := m.cache.ScanPrefix(ctx, KeyPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		payload, ok, err := m.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		var rec cacheRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}
		if rec.SubjectID != subjectID {
			continue
		}
		if err := m.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// ListForSubject returns session summaries for the subject. With a durable
// store this is the authoritative listing, including revoked and expired
// records awaiting prune. Without one it is a best-effort reconstruction from
// a cache scan and does not reflect revocation state consistently.
func (m *Manager) ListForSubject(ctx context.Context, subjectID string) ([]domain.Summary, error) {
	if m.store != nil {
		records, err := m.store.ListBySubject(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Summary, 0, len(records))
		for _, s := range records {
			out = append(out, domain.Summary{
				ID:                    s.ID,
				CreatedAt:             s.CreatedAt,
				ExpiresAt:             s.ExpiresAt,
				Revoked:               s.RevokedAt != nil,
				ClientFingerprintHash: s.ClientFingerprintHash,
				ClientAgent:           s.ClientAgent,
			})
		}
		return out, nil
	}

	keys, err := m.cache.ScanPrefix(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	var out []domain.Summary
	for _, key := range keys {
		payload, ok, err := m.cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec cacheRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}
		if rec.SubjectID != subjectID {
			continue
		}
		out = append(out, domain.Summary{
			ID:                    key[len(KeyPrefix):],
			CreatedAt:             rec.CreatedAt,
			ExpiresAt:             rec.ExpiresAt,
			ClientFingerprintHash: rec.ClientFingerprintHash,
			ClientAgent:           rec.ClientAgent,
		})
	}
	return out, nil
}

// PruneExpired removes durable records that expired before now. Cache entries
// self-expire; durable records persist for audit until pruned. No-op without
// a durable store.
func (m *Manager) PruneExpired(ctx context.Context) (int64, error) {
	if m.store == nil {
		return 0, nil
	}
	return m.store.DeleteExpiredBefore(ctx, m.nowF().UTC())
}
