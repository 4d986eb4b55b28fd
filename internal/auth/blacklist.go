package auth

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Blacklist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisBlacklist remembers revoked token ids until the token would have expired anyway.
type RedisBlacklist struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisBlacklist(rdb *redis.Client, prefix string) *RedisBlacklist {
	return &RedisBlacklist{rdb: rdb, prefix: prefix}
}

func (b *RedisBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, b.prefix+"revoked:"+jti, 1, ttl).Err()
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.prefix+"revoked:"+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActivityLimiter decides whether a session's last_activity should be
// written now. Allow returns true at most once per interval per session.
type ActivityLimiter struct {
	rdb      *redis.Client
	prefix   string
	interval time.Duration
}

func NewActivityLimiter(rdb *redis.Client, prefix string, interval time.Duration) *ActivityLimiter {
	return &ActivityLimiter{rdb: rdb, prefix: prefix, interval: interval}
}

func (l *ActivityLimiter) Allow(ctx context.Context, sessionKey string) bool {
	ok, err := l.rdb.SetNX(ctx, l.prefix+"activity:"+sessionKey, 1, l.interval).Result()
	if err != nil {
		return true
	}
	return ok
}
