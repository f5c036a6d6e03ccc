// Package ratelimit implements a best-effort sliding-window rate limiter over
// the shared cache's ordered sets, so the window is enforced consistently
// across all process instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"authcore/internal/cache"
	"authcore/internal/security"
)

// SubjectKind selects which request attribute a rule buckets on.
type SubjectKind string

const (
	SubjectIP      SubjectKind = "ip"
	SubjectAccount SubjectKind = "acct"
)

// Rule limits one action for one subject kind: at most Limit events per
// sliding Window.
type Rule struct {
	Kind   SubjectKind
	Action string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a rate-limit check. RetryAfter is set only on
// rejection and always falls in [1s, Window].
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

var allowed = Decision{Allowed: true}

// Limiter tracks event timestamps per (kind, value, action) bucket in the
// shared cache. The prune-count-insert sequence is not atomic: concurrent
// requests to one bucket may exceed the limit by a small bounded margin (at
// the instant a request decides to reject, the bucket holds at most limit+1
// live entries). Exact enforcement would need a server-side scripted
// transaction; this relaxation is deliberate.
type Limiter struct {
	cache cache.Cache
	nowF  func() time.Time
}

// NewLimiter returns a limiter over the given cache.
func NewLimiter(c cache.Cache) *Limiter {
	return &Limiter{cache: c, nowF: time.Now}
}

// SetClock overrides the limiter's clock; test-only.
func (l *Limiter) SetClock(now func() time.Time) { l.nowF = now }

// Check prunes entries older than the window, counts the remainder, and
// either rejects with a computed retry-after or records the event. A backend
// failure denies (fail-closed) and surfaces the error for logging; the
// returned decision then carries a conservative full-window retry-after.
func (l *Limiter) Check(ctx context.Context, kind SubjectKind, value, action string, limit int, window time.Duration) (Decision, error) {
	key := bucketKey(kind, value, action)
	now := l.nowF()
	nowMs := float64(now.UnixMilli())
	windowStartMs := float64(now.Add(-window).UnixMilli())

	if err := l.cache.ZRemRangeByScore(ctx, key, 0, windowStartMs); err != nil {
		return Decision{Allowed: false, RetryAfter: window}, err
	}
	count, err := l.cache.ZCard(ctx, key)
	if err != nil {
		return Decision{Allowed: false, RetryAfter: window}, err
	}
	if count >= int64(limit) {
		retry := window
		oldest, err := l.cache.ZRangeWithScores(ctx, key, 0, 0)
		if err != nil {
			return Decision{Allowed: false, RetryAfter: window}, err
		}
		if len(oldest) == 1 {
			elapsed := time.Duration(nowMs-oldest[0].Score) * time.Millisecond
			retry = window - elapsed
		}
		if retry < time.Second {
			retry = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	// Member carries a random suffix so multiple events can share one
	// timestamp.
	member := fmt.Sprintf("%d:%s", now.UnixMilli(), security.Token(24)[:8])
	if err := l.cache.ZAdd(ctx, key, nowMs, member); err != nil {
		return Decision{Allowed: false, RetryAfter: window}, err
	}
	// Abandoned buckets self-clean once no event is newer than the window.
	if err := l.cache.Expire(ctx, key, window); err != nil {
		return Decision{Allowed: false, RetryAfter: window}, err
	}
	return allowed, nil
}

// CheckAll evaluates every rule matching action: ip-kind rules against ip,
// account-kind rules against account (skipped when account is empty). The
// request is rejected if any rule rejects, with that rule's retry-after.
func (l *Limiter) CheckAll(ctx context.Context, rules []Rule, ip, account, action string) (Decision, error) {
	for _, r := range rules {
		if r.Action != action {
			continue
		}
		var value string
		switch r.Kind {
		case SubjectIP:
			value = ip
		case SubjectAccount:
			value = account
		}
		if value == "" {
			continue
		}
		d, err := l.Check(ctx, r.Kind, value, action, r.Limit, r.Window)
		if err != nil || !d.Allowed {
			return d, err
		}
	}
	return allowed, nil
}

func bucketKey(kind SubjectKind, value, action string) string {
	return fmt.Sprintf("rl:%s:%s:%s", kind, value, action)
}
