package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memZSet struct {
	members   map[string]float64
	expiresAt time.Time
}

// Memory is an in-process Cache with the same semantics as the Redis
// implementation: per-key TTLs, lazy expiry, ordered sets. Intended for tests
// and single-process development; production deployments share a Redis.
type Memory struct {
	mu   sync.Mutex
	kv   map[string]memEntry
	zs   map[string]*memZSet
	nowF func() time.Time
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		kv:   make(map[string]memEntry),
		zs:   make(map[string]*memZSet),
		nowF: time.Now,
	}
}

// SetClock overrides the cache's clock; test-only.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowF = now
}

// Get returns the value for key, or ("", false) when absent or expired.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(m.nowF()) {
		delete(m.kv, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// SetWithTTL stores value under key, expiring after ttl. ttl <= 0 stores
// without expiry.
func (m *Memory) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.nowF().Add(ttl)
	}
	m.kv[key] = e
	return nil
}

// Delete removes the given keys from both the kv and ordered-set namespaces.
func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
		delete(m.zs, k)
	}
	return nil
}

// ScanPrefix returns all live keys beginning with prefix.
func (m *Memory) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowF()
	var out []string
	for k, e := range m.kv {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(m.kv, k)
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// ZAdd adds member with score to the ordered set at key.
func (m *Memory) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.liveZSet(key)
	if z == nil {
		z = &memZSet{members: make(map[string]float64)}
		m.zs[key] = z
	}
	z.members[member] = score
	return nil
}

// ZRemRangeByScore removes members with score in [min, max].
func (m *Memory) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.liveZSet(key)
	if z == nil {
		return nil
	}
	for member, score := range z.members {
		if score >= min && score <= max {
			delete(z.members, member)
		}
	}
	return nil
}

// ZCard returns the number of members in the ordered set at key.
func (m *Memory) ZCard(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.liveZSet(key)
	if z == nil {
		return 0, nil
	}
	return int64(len(z.members)), nil
}

// ZRangeWithScores returns members by rank in [start, stop], ascending by
// score. Negative indexes count from the end, as in Redis.
func (m *Memory) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.liveZSet(key)
	if z == nil {
		return nil, nil
	}
	all := make([]Member, 0, len(z.members))
	for member, score := range z.members {
		all = append(all, Member{Value: member, Score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score < all[j].Score
		}
		return all[i].Value < all[j].Value
	})
	n := int64(len(all))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	return all[start : stop+1], nil
}

// Expire sets key's TTL in whichever namespace holds it.
func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline := m.nowF().Add(ttl)
	if e, ok := m.kv[key]; ok {
		e.expiresAt = deadline
		m.kv[key] = e
	}
	if z := m.liveZSet(key); z != nil {
		z.expiresAt = deadline
	}
	return nil
}

// liveZSet returns the ordered set at key, dropping it first if expired.
// Caller must hold mu.
func (m *Memory) liveZSet(key string) *memZSet {
	z, ok := m.zs[key]
	if !ok {
		return nil
	}
	if !z.expiresAt.IsZero() && !z.expiresAt.After(m.nowF()) {
		delete(m.zs, key)
		return nil
	}
	return z
}
