// Package cache abstracts the shared external cache that holds all
// cross-request state: session records and rate-limit buckets. Any process
// instance can serve any request because the cache, not process memory, is
// the source of truth.
package cache

import (
	"context"
	"time"
)

// Member is one ordered-set entry with its score.
type Member struct {
	Value string
	Score float64
}

// Cache is the shared cache consumed by the session manager and rate limiter.
// Implementations must treat a missing key as ("", false) on Get, never as an
// error. All operations honor ctx cancellation and deadlines.
type Cache interface {
	// Get returns the value for key and true, or ("", false) when absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, keys ...string) error
	// ScanPrefix returns all keys beginning with prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// ZAdd adds member to the ordered set at key with the given score.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRemRangeByScore removes members with score in [min, max].
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	// ZCard returns the cardinality of the ordered set at key.
	ZCard(ctx context.Context, key string) (int64, error)
	// ZRangeWithScores returns members by rank in [start, stop], ascending by score.
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error)
	// Expire sets key's TTL.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
