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
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/queue"
	"github.com/SalahElkadim/alc/internal/storage"
	"github.com/SalahElkadim/alc/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting import worker")

	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	importWorker := worker.NewImportWorker(cfg, repo, s3Storage, redisClient, queue.NewProducer(redisClient, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := importWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Import worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down import worker...")

	cancel()
	importWorker.Stop()

	log.Info().Msg("Import worker exited")
}
