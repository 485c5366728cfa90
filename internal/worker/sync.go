package worker

import (
	"context"
	"fmt"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/license"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/queue"
	"grading-assistant-core/pkg/errors"

	"github.com/rs/zerolog"
)

// Syncer runs one reconciliation attempt.
type Syncer interface {
	Sync(ctx context.Context) (*model.SyncResult, error)
}

// SyncWorker turns queued triggers for this device into engine runs.
type SyncWorker struct {
	cfg        *config.Config
	engine     Syncer
	gate       license.Gate
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewSyncWorker(cfg *config.Config, engine Syncer, gate license.Gate, consumer *queue.Consumer) *SyncWorker {
	return &SyncWorker{
		cfg:        cfg,
		engine:     engine,
		gate:       gate,
		consumer:   consumer,
		workerPool: NewWorkerPool(cfg.Workers.Sync.Count),
		log:        logger.Component("sync_worker"),
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting sync worker")

	w.workerPool.Start(ctx)

	if w.consumer == nil {
		return fmt.Errorf("sync worker has no queue consumer")
	}
	return w.consumer.ConsumeSyncQueue(ctx, w.HandleMessage)
}

func (w *SyncWorker) Stop() {
	w.log.Info().Msg("Stopping sync worker")
	w.workerPool.Stop()
}

// HandleMessage validates a trigger and schedules a sync. Malformed triggers,
// triggers for another device and triggers the pool has no room for are
// returned as errors so the consumer parks them on the DLQ.
func (w *SyncWorker) HandleMessage(ctx context.Context, data []byte) error {
	trigger, err := queue.DecodeTrigger(data)
	if err != nil {
		return err
	}

	id, err := w.gate.Identity(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}
	if trigger.DeviceID != id.DeviceID {
		return fmt.Errorf("trigger for device %s received by device %s", trigger.DeviceID, id.DeviceID)
	}

	w.log.Info().
		Str("device_id", trigger.DeviceID).
		Str("reason", trigger.Reason).
		Int64("requested_at", trigger.RequestedAt).
		Msg("Processing sync trigger")

	accepted := w.workerPool.Submit(func(ctx context.Context) error {
		result, err := w.engine.Sync(ctx)
		if err != nil {
			return err
		}
		if result.Skipped {
			w.log.Info().Str("reason", result.SkipReason).Msg("Sync skipped")
			return nil
		}
		w.log.Info().
			Int("pushed", result.Pushed).
			Int("pulled", result.Pulled).
			Int("imported", result.Imported).
			Msg("Triggered sync finished")
		return nil
	})
	if !accepted {
		w.log.Warn().Str("device_id", trigger.DeviceID).Str("reason", trigger.Reason).Msg("Sync trigger dropped, pool queue full")
		return fmt.Errorf("%w: trigger for device %s", errors.ErrWorkerPoolFull, trigger.DeviceID)
	}
	return nil
}
