package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/SalahElkadim/alc/internal/api"
	"github.com/SalahElkadim/alc/internal/auth"
	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/db"
	"github.com/SalahElkadim/alc/internal/exam"
	"github.com/SalahElkadim/alc/internal/gateway"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/payment"
	"github.com/SalahElkadim/alc/internal/queue"
	"github.com/SalahElkadim/alc/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background(), database); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	producer := queue.NewProducer(redisClient, cfg)
	rdb := redisClient.Client()

	// Auth
	var sessions auth.SessionStore = repo
	if cfg.Auth.SessionStore == "redis" {
		sessions = auth.NewRedisSessionStore(rdb, cfg.Redis.KeyPrefix, cfg.Auth.RefreshTTL)
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	authService := auth.NewService(cfg, repo, sessions, tokens, auth.NewRedisBlacklist(rdb, cfg.Redis.KeyPrefix))
	guard := auth.NewGuard(authService,
		auth.NewActivityLimiter(rdb, cfg.Redis.KeyPrefix, cfg.Auth.ActivityInterval),
		auth.DefaultAllowList)

	workbooks, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	examService := exam.NewService(cfg, repo)
	paymentService := payment.NewService(cfg, repo, gateway.NewClient(cfg), producer)

	handler := api.NewHandler(cfg, examService, authService, paymentService, producer, repo, workbooks,
		api.HealthCheck{Name: "mysql", Check: database.PingContext},
		api.HealthCheck{Name: "redis", Check: redisClient.Ping},
	)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	api.SetupRoutes(router, handler, guard.Middleware())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
