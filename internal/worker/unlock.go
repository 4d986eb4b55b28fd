package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/internal/queue"
	"github.com/SalahElkadim/alc/pkg/errors"
)

type Unlocker interface {
	RetryUnlock(ctx context.Context, gatewayID string) error
}

type UnlockQueue interface {
	EnqueueUnlockJob(ctx context.Context, job model.UnlockJob) error
	DeadLetterUnlockJob(ctx context.Context, job model.UnlockJob) error
}

// UnlockWorker retries book unlocks for paid payments that could not be
// granted when they were reconciled.
type UnlockWorker struct {
	cfg        config.UnlockWorkerConfig
	unlocker   Unlocker
	queue      UnlockQueue
	redis      *queue.RedisClient
	queueName  string
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewUnlockWorker(
	cfg *config.Config,
	unlocker Unlocker,
	unlockQueue UnlockQueue,
	redisClient *queue.RedisClient,
) *UnlockWorker {
	return &UnlockWorker{
		cfg:        cfg.Workers.Unlock,
		unlocker:   unlocker,
		queue:      unlockQueue,
		redis:      redisClient,
		queueName:  cfg.Redis.UnlockQueue,
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool("unlock", cfg.Workers.Unlock.Count),
		log:        logger.Get(),
	}
}

func (w *UnlockWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting unlock worker")

	if backlog, err := w.redis.Backlog(ctx, w.queueName); err == nil {
		w.log.Info().Int64("pending", backlog.Pending).Int64("dead", backlog.Dead).Msg("Unlock queue backlog")
	}

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeUnlockQueue(ctx, w.handleMessage)
}

func (w *UnlockWorker) Stop() {
	w.log.Info().Msg("Stopping unlock worker")
	w.workerPool.Stop()
}

func (w *UnlockWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.UnlockJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal unlock job")
		return err
	}

	w.log.Info().Str("gateway_id", job.GatewayID).Int("attempt", job.Attempt).Msg("Processing unlock job")

	if !w.workerPool.Submit(func(ctx context.Context) error {
		return w.process(ctx, job)
	}) {
		return fmt.Errorf("unlock job %s: %w", job.GatewayID, queue.ErrBackpressure)
	}

	return nil
}

// process runs one attempt. Retryable failures are requeued after the retry
// delay until the attempt budget is spent, then the job is dead-lettered.
func (w *UnlockWorker) process(ctx context.Context, job model.UnlockJob) error {
	err := w.unlocker.RetryUnlock(ctx, job.GatewayID)
	if err == nil {
		return nil
	}

	log := w.log.With().Str("gateway_id", job.GatewayID).Int("attempt", job.Attempt).Logger()

	next := job
	next.Attempt++
	if errors.IsRetryable(err) && next.Attempt < w.cfg.MaxAttempts {
		log.Warn().Err(err).Dur("retry_in", w.cfg.RetryDelay).Msg("Unlock still pending, will retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.RetryDelay):
		}
		return w.queue.EnqueueUnlockJob(ctx, next)
	}

	log.Error().Err(err).Msg("Giving up on unlock job")
	if dlqErr := w.queue.DeadLetterUnlockJob(ctx, next); dlqErr != nil {
		log.Error().Err(dlqErr).Msg("Failed to dead-letter unlock job")
	}
	return err
}
