package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/logger"
)

type Sweeper interface {
	Sweep(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

// ReconcileWorker periodically refreshes payments the gateway may have
// settled without a callback or webhook reaching us.
type ReconcileWorker struct {
	cfg     config.ReconcileWorkerConfig
	sweeper Sweeper
	ticker  *time.Ticker
	log     zerolog.Logger
}

func NewReconcileWorker(cfg *config.Config, sweeper Sweeper) *ReconcileWorker {
	return &ReconcileWorker{
		cfg:     cfg.Workers.Reconcile,
		sweeper: sweeper,
		log:     logger.Get(),
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Interval).Msg("Starting reconcile worker")

	if w.cfg.RunOnStart {
		w.log.Info().Msg("Running initial sweep on startup")
		w.sweep(ctx)
	}

	w.ticker = time.NewTicker(w.cfg.Interval)
	defer w.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Reconcile worker context cancelled")
			return ctx.Err()
		case <-w.ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReconcileWorker) Stop() {
	w.log.Info().Msg("Stopping reconcile worker")
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *ReconcileWorker) sweep(ctx context.Context) {
	start := time.Now()

	count, err := w.sweeper.Sweep(ctx, w.cfg.StaleAfter, w.cfg.BatchSize)
	if err != nil {
		w.log.Error().Err(err).Int("refreshed", count).Msg("Payment sweep failed")
		return
	}

	w.log.Info().Dur("duration", time.Since(start)).Int("refreshed", count).Msg("Payment sweep completed")
}
