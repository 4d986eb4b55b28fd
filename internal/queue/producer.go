package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/model"
)

// Producer pushes JSON encoded jobs onto the import and unlock queues.
type Producer struct {
	redis *RedisClient
	cfg   *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{redis: redisClient, cfg: cfg}
}

func (p *Producer) EnqueueImportJob(ctx context.Context, job model.ImportJob) error {
	return p.push(ctx, p.redis.queueKey(p.cfg.Redis.ImportQueue), job)
}

func (p *Producer) EnqueueUnlockJob(ctx context.Context, job model.UnlockJob) error {
	return p.push(ctx, p.redis.queueKey(p.cfg.Redis.UnlockQueue), job)
}

// DeadLetterImportJob parks an import that failed after it was accepted.
func (p *Producer) DeadLetterImportJob(ctx context.Context, job model.ImportJob) error {
	return p.push(ctx, p.redis.deadLetterKey(p.cfg.Redis.ImportQueue), job)
}

// DeadLetterUnlockJob parks a job that exhausted its attempts.
func (p *Producer) DeadLetterUnlockJob(ctx context.Context, job model.UnlockJob) error {
	return p.push(ctx, p.redis.deadLetterKey(p.cfg.Redis.UnlockQueue), job)
}

func (p *Producer) push(ctx context.Context, key string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job for %s: %w", key, err)
	}

	return p.redis.Client().LPush(ctx, key, data).Err()
}
