package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/db"
	"github.com/SalahElkadim/alc/internal/gateway"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/payment"
	"github.com/SalahElkadim/alc/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting reconcile worker")

	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	// Sweep revisits ungranted paid payments on its own.
	paymentService := payment.NewService(cfg, repo, gateway.NewClient(cfg), nil)
	reconcileWorker := worker.NewReconcileWorker(cfg, paymentService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := reconcileWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Reconcile worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down reconcile worker...")

	cancel()
	reconcileWorker.Stop()

	log.Info().Msg("Reconcile worker exited")
}
