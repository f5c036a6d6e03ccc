package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Cache on a Redis client. Ordered sets map to ZSETs; key
// TTLs map to EXPIRE.
type Redis struct {
	rdb *redis.Client
}

// NewRedis returns a Cache backed by rdb. Caller owns the client lifecycle.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Ping verifies connectivity; used at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Get returns the value for key, or ("", false) when the key is absent.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// SetWithTTL stores value under key with the given expiry.
func (r *Redis) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// Delete removes the given keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

// ScanPrefix returns all keys beginning with prefix using cursor SCAN, never
// the blocking KEYS command.
func (r *Redis) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// ZAdd adds member to the ordered set at key with the given score.
func (r *Redis) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRemRangeByScore removes members scored within [min, max].
func (r *Redis) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return r.rdb.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

// ZCard returns the number of members in the ordered set at key.
func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	return r.rdb.ZCard(ctx, key).Result()
}

// ZRangeWithScores returns members by rank in [start, stop] with scores.
func (r *Redis) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	zs, err := r.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(zs))
	for i, z := range zs {
		v, _ := z.Member.(string)
		out[i] = Member{Value: v, Score: z.Score}
	}
	return out, nil
}

// Expire sets key's TTL.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.rdb.Expire(ctx, key, ttl).Err()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
