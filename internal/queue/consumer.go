package queue

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/logger"
)

// ErrBackpressure tells the consumer the job was not taken and should go
// back on the queue rather than to the DLQ.
var ErrBackpressure = errors.New("consumer is saturated")

type MessageHandler func(ctx context.Context, data []byte) error

type Consumer struct {
	redis       *RedisClient
	cfg         *config.Config
	pollTimeout time.Duration
	backoff     time.Duration
	log         zerolog.Logger
}

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		redis:       redisClient,
		cfg:         cfg,
		pollTimeout: 5 * time.Second,
		backoff:     500 * time.Millisecond,
		log:         logger.Get(),
	}
}

func (c *Consumer) ConsumeImportQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.ImportQueue, handler)
}

func (c *Consumer) ConsumeUnlockQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.UnlockQueue, handler)
}

func (c *Consumer) consume(ctx context.Context, name string, handler MessageHandler) error {
	rdb := c.redis.Client()
	key := c.redis.queueKey(name)
	log := c.log.With().Str("queue", key).Logger()

	for ctx.Err() == nil {
		result, err := rdb.BRPop(ctx, c.pollTimeout, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("Failed to consume message")
			c.pause(ctx)
			continue
		}
		if len(result) < 2 {
			continue
		}

		message := result[1]
		err = handler(ctx, []byte(message))
		switch {
		case err == nil:
		case errors.Is(err, ErrBackpressure):
			// RPush puts it back at the end BRPop reads from.
			if err := rdb.RPush(ctx, key, message).Err(); err != nil {
				log.Error().Err(err).Msg("Failed to requeue message")
			}
			c.pause(ctx)
		default:
			log.Error().Err(err).Msg("Failed to process message")
			dlq := c.redis.deadLetterKey(name)
			if err := rdb.LPush(ctx, dlq, message).Err(); err != nil {
				log.Error().Err(err).Str("dlq", dlq).Msg("Failed to move message to DLQ")
			}
		}
	}

	return ctx.Err()
}

func (c *Consumer) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.backoff):
	}
}
