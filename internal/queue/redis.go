package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/SalahElkadim/alc/internal/config"
)

// RedisClient owns the connection shared by the job queues and the auth
// stores, and namespaces queue keys with redis.key_prefix.
type RedisClient struct {
	client *redis.Client
	cfg    *config.Config
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.RedisAddr(), err)
	}

	return &RedisClient{client: rdb, cfg: cfg}, nil
}

// WrapRedisClient adopts an existing client, used by tests.
func WrapRedisClient(rdb *redis.Client, cfg *config.Config) *RedisClient {
	return &RedisClient{client: rdb, cfg: cfg}
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Ping backs the /health probe.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) queueKey(name string) string {
	return r.cfg.Redis.KeyPrefix + name
}

func (r *RedisClient) deadLetterKey(name string) string {
	return r.queueKey(name) + r.cfg.Redis.DLQSuffix
}

// Backlog counts jobs waiting on a queue and jobs parked on its DLQ.
type Backlog struct {
	Pending int64
	Dead    int64
}

func (r *RedisClient) Backlog(ctx context.Context, name string) (Backlog, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.queueKey(name))
	dead := pipe.LLen(ctx, r.deadLetterKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		return Backlog{}, err
	}
	return Backlog{Pending: pending.Val(), Dead: dead.Val()}, nil
}
