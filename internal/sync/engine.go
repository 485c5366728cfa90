package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/license"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/store"
	"grading-assistant-core/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Engine reconciles the local record store with the remote one for entitled
// identities. At most one attempt runs per identity; concurrent triggers
// receive the result of the attempt already in flight. The engine never
// retries a failed attempt on its own schedule.
type Engine struct {
	cfg     *config.Config
	records *store.Records
	remote  Remote
	gate    license.Gate
	group   singleflight.Group
	log     zerolog.Logger

	now    func() time.Time
	newKey func() string

	mu        sync.RWMutex
	state     model.SyncState
	loaded    bool
	listeners []func(model.SyncState)
}

func NewEngine(cfg *config.Config, records *store.Records, remote Remote, gate license.Gate) *Engine {
	return &Engine{
		cfg:     cfg,
		records: records,
		remote:  remote,
		gate:    gate,
		log:     logger.Component("sync_engine"),
		now:     time.Now,
		newKey:  uuid.NewString,
		state:   model.SyncState{Status: model.SyncStatusIdle},
	}
}

// State returns a snapshot of the current sync state.
func (e *Engine) State() model.SyncState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Subscribe registers fn for every status transition.
func (e *Engine) Subscribe(fn func(model.SyncState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// LoadState restores the persisted last sync time.
func (e *Engine) LoadState(ctx context.Context) error {
	ts, err := e.records.LastSyncTime(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if ts > e.state.LastSyncTime {
		e.state.LastSyncTime = ts
	}
	e.loaded = true
	e.mu.Unlock()
	return nil
}

// Sync runs one reconciliation attempt. Identities that are not entitled get
// a skipped result and their records stay local.
func (e *Engine) Sync(ctx context.Context) (*model.SyncResult, error) {
	e.mu.RLock()
	loaded := e.loaded
	e.mu.RUnlock()
	if !loaded {
		if err := e.LoadState(ctx); err != nil {
			e.log.Warn().Err(err).Msg("Failed to load last sync time")
		}
	}

	id, entitled, err := license.Entitled(ctx, e.gate)
	if err != nil {
		e.transition(model.SyncStatusError, 0, "Could not verify your license. Your local records are safe; try syncing again.")
		return nil, fmt.Errorf("license check failed: %w", err)
	}
	if !entitled {
		e.log.Debug().Str("device_id", id.DeviceID).Msg("Identity not entitled, keeping records local")
		return &model.SyncResult{Skipped: true, SkipReason: errors.ErrNotEntitled.Error()}, nil
	}

	v, err, shared := e.group.Do(id.Key(), func() (interface{}, error) {
		return e.run(ctx, id)
	})
	if shared {
		e.log.Debug().Str("device_id", id.DeviceID).Msg("Joined sync already in flight")
	}
	result, _ := v.(*model.SyncResult)
	return result, err
}

func (e *Engine) run(ctx context.Context, id model.Identity) (*model.SyncResult, error) {
	log := e.log.With().Str("device_id", id.DeviceID).Logger()
	log.Info().Msg("Starting sync")
	e.transition(model.SyncStatusSyncing, 0, "")

	result := &model.SyncResult{}

	local, err := e.records.GetAll(ctx)
	if err != nil {
		return e.fail(result, "read", err)
	}

	// Push always finishes before pull starts.
	if unsynced := Unsynced(local); len(unsynced) > 0 {
		key := e.idempotencyKey(ctx, unsynced)
		result.IdempotencyKey = key

		created, err := e.push(ctx, id, unsynced, key)
		if err != nil {
			return e.fail(result, "push", err)
		}
		result.Pushed = len(unsynced)
		result.Created = created

		pushed := make(map[string]bool, len(unsynced))
		for _, r := range unsynced {
			pushed[r.ID] = true
		}
		pushedAt := e.now().UnixMilli()
		_, err = e.records.Update(ctx, func(current []model.GradingRecord) ([]model.GradingRecord, error) {
			next := make([]model.GradingRecord, len(current))
			copy(next, current)
			for i := range next {
				if pushed[next[i].ID] && next[i].SyncedAt == 0 {
					next[i].SyncedAt = pushedAt
				}
			}
			return next, nil
		})
		if err != nil {
			return e.fail(result, "push", err)
		}
		if err := e.records.ClearPendingPush(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear pending push marker")
		}
		log.Info().Int("pushed", result.Pushed).Int("created", created).Msg("Pushed unsynced records")
	}

	remote, err := e.remote.FetchAll(ctx, id, model.QuestionFilter{})
	if err != nil {
		return e.fail(result, "pull", err)
	}
	result.Pulled = len(remote)

	var stats MergeStats
	mergedAt := e.now().UnixMilli()
	_, err = e.records.Update(ctx, func(current []model.GradingRecord) ([]model.GradingRecord, error) {
		merged, s := Merge(current, remote, mergedAt)
		stats = s
		return merged, nil
	})
	if err != nil {
		return e.fail(result, "merge", err)
	}
	result.Imported = stats.Imported
	result.Linked = stats.Linked
	result.DuplicatesHidden = stats.DuplicatesHidden

	syncedAt := e.now().UnixMilli()
	if err := e.records.SetLastSyncTime(ctx, syncedAt); err != nil {
		return e.fail(result, "merge", err)
	}
	result.LastSyncTime = e.transition(model.SyncStatusSuccess, syncedAt, "")

	log.Info().
		Int("pulled", result.Pulled).
		Int("imported", result.Imported).
		Int("linked", result.Linked).
		Int("duplicates_hidden", result.DuplicatesHidden).
		Msg("Sync completed")
	return result, nil
}

// idempotencyKey reuses the key of an earlier push of the same record set
// whose outcome was never confirmed.
func (e *Engine) idempotencyKey(ctx context.Context, unsynced []model.GradingRecord) string {
	fp := fingerprint(unsynced)
	pending, err := e.records.PendingPush(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to read pending push marker")
	}
	if pending != nil && pending.Fingerprint == fp && pending.Key != "" {
		return pending.Key
	}

	key := e.newKey()
	err = e.records.SetPendingPush(ctx, store.PendingPush{
		Key:         key,
		Fingerprint: fp,
		CreatedAt:   e.now().UnixMilli(),
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to persist pending push marker")
	}
	return key
}

func (e *Engine) push(ctx context.Context, id model.Identity, unsynced []model.GradingRecord, key string) (int, error) {
	inputs := make([]model.RecordInput, len(unsynced))
	for i, r := range unsynced {
		inputs[i] = r.ToInput()
	}

	attempts := e.cfg.RemoteAPI.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(e.cfg.RemoteAPI.RetryDelay * time.Duration(attempt)):
			}
		}

		created, err := e.remote.BatchCreate(ctx, id, inputs, key)
		if err == nil {
			return created, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			break
		}
		e.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Batch push failed, retrying with same key")
	}
	return 0, lastErr
}

func (e *Engine) fail(result *model.SyncResult, step string, err error) (*model.SyncResult, error) {
	e.log.Error().Err(err).Str("step", step).Msg("Sync failed")
	e.transition(model.SyncStatusError, 0, failureMessage(step, err))
	return result, fmt.Errorf("sync %s: %w", step, err)
}

func failureMessage(step string, err error) string {
	if stderrors.Is(err, errors.ErrStorageFull) {
		return errors.StorageFullRemediation
	}
	var netErr errors.NetworkError
	if stderrors.As(err, &netErr) {
		return fmt.Sprintf("Could not reach the grading server (%s). Your local records are safe; try syncing again.", step)
	}
	return fmt.Sprintf("Sync failed during %s. Your local records are safe; try syncing again.", step)
}

// transition moves to status and notifies listeners. lastSync is applied
// only when it moves the recorded time forward. It returns the resulting
// last sync time.
func (e *Engine) transition(status model.SyncStatus, lastSync int64, message string) int64 {
	e.mu.Lock()
	e.state.Status = status
	e.state.Message = message
	if lastSync > e.state.LastSyncTime {
		e.state.LastSyncTime = lastSync
	}
	snapshot := e.state
	listeners := make([]func(model.SyncState), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return snapshot.LastSyncTime
}

// DeleteQuestion removes every record of a question. For entitled
// identities the remote delete runs first so a later pull cannot bring the
// records back; if it fails nothing is removed locally.
func (e *Engine) DeleteQuestion(ctx context.Context, filter model.QuestionFilter) (localDeleted, remoteDeleted int, err error) {
	if filter.IsEmpty() {
		return 0, 0, errors.ErrMissingFilter
	}

	id, entitled, err := license.Entitled(ctx, e.gate)
	if err != nil {
		e.log.Warn().Err(err).Msg("License check failed, deleting locally only")
		entitled = false
	}
	if entitled {
		remoteDeleted, err = e.remote.DeleteByFilter(ctx, id, filter)
		if err != nil {
			return 0, 0, fmt.Errorf("remote delete: %w", err)
		}
	}

	localDeleted, err = e.records.DeleteByQuestion(ctx, filter)
	if err != nil {
		return 0, remoteDeleted, fmt.Errorf("local delete: %w", err)
	}

	e.log.Info().
		Str("question_key", filter.QuestionKey).
		Str("question_no", filter.QuestionNo).
		Int("local_deleted", localDeleted).
		Int("remote_deleted", remoteDeleted).
		Msg("Deleted question records")
	return localDeleted, remoteDeleted, nil
}
