package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/license"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/queue"
	"grading-assistant-core/internal/store"
	"grading-assistant-core/internal/sync"
	"grading-assistant-core/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Str("device_id", cfg.License.DeviceID).Msg("Starting sync worker")

	kv, err := store.NewSQLiteKV(cfg.LocalStore.Path, cfg.LocalStore.QuotaBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer kv.Close()

	records := store.NewRecords(kv, store.KeysFromConfig(cfg.LocalStore))
	if n, err := records.MigrateLegacy(context.Background()); err != nil {
		log.Error().Err(err).Msg("Legacy migration failed")
	} else if n > 0 {
		log.Info().Int("records", n).Msg("Migrated legacy records")
	}

	syncQueue, err := queue.OpenSyncQueue(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer syncQueue.Close()

	gate := license.NewCachedGate(license.NewHTTPGate(cfg), cfg.RemoteAPI.EntitlementCache)
	engine := sync.NewEngine(cfg, records, sync.NewClient(cfg), gate)
	syncWorker := worker.NewSyncWorker(cfg, engine, gate, queue.NewConsumer(syncQueue))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := syncWorker.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("Sync worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync worker...")

	cancel()
	syncWorker.Stop()

	log.Info().Msg("Sync worker exited")
}
