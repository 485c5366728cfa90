package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"grading-assistant-core/internal/api"
	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/db"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/queue"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting record service")

	var repo db.Repository
	if cfg.Database.Host != "" {
		database, err := db.NewConnection(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()

		if err := db.EnsureSchema(context.Background(), database); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare database schema")
		}
		repo = db.NewRepository(database)
	} else {
		log.Warn().Msg("No database configured, keeping records in memory")
		repo = db.NewMemoryRepository()
	}

	var producer *queue.Producer
	if cfg.Redis.Host != "" {
		syncQueue, err := queue.OpenSyncQueue(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer syncQueue.Close()
		producer = queue.NewProducer(syncQueue)
	}

	handler := api.NewHandler(repo, producer, cfg)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(handler)

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
