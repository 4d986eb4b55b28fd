package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/logger"
)

type Job func(context.Context) error

// WorkerPool runs submitted jobs on a fixed number of goroutines. The queue
// holds twice the worker count; Submit never blocks.
type WorkerPool struct {
	name        string
	workerCount int
	jobChan     chan Job
	wg          sync.WaitGroup
	stopOnce    sync.Once
	log         zerolog.Logger
}

func NewWorkerPool(name string, workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		name:        name,
		workerCount: workerCount,
		jobChan:     make(chan Job, workerCount*2),
		log:         logger.Get().With().Str("pool", name).Logger(),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop lets queued jobs drain and waits for the workers to exit.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.log.Info().Msg("Stopping worker pool")
		close(wp.jobChan)
		wp.wg.Wait()
		wp.log.Info().Msg("Worker pool stopped")
	})
}

// Submit reports whether the job was accepted. Callers hand rejected jobs
// back to their queue.
func (wp *WorkerPool) Submit(job Job) bool {
	select {
	case wp.jobChan <- job:
		return true
	default:
		wp.log.Warn().Int("capacity", cap(wp.jobChan)).Msg("Worker pool saturated, job rejected")
		return false
	}
}

func (wp *WorkerPool) run(ctx context.Context, log zerolog.Logger, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Job panicked")
		}
	}()

	if err := job(ctx); err != nil {
		log.Error().Err(err).Msg("Job execution failed")
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")


	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-wp.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}

			wp.run(ctx, log, job)
		}
	}
}
