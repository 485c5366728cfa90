package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Keys names the persisted values of the record store.
type Keys struct {
	Records     string
	Legacy      string
	LastSync    string
	Migrated    string
	PendingPush string
}

func KeysFromConfig(cfg config.LocalStoreConfig) Keys {
	return Keys{
		Records:     cfg.RecordsKey,
		Legacy:      cfg.LegacyKey,
		LastSync:    cfg.LastSyncKey,
		Migrated:    cfg.MigratedKey,
		PendingPush: cfg.PendingPushKey,
	}
}

func DefaultKeys() Keys {
	var cfg config.Config
	cfg.ApplyDefaults()
	return KeysFromConfig(cfg.LocalStore)
}

// PendingPush remembers the idempotency key of a push whose outcome is
// unknown, so a retry of the same record set reuses it.
type PendingPush struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	CreatedAt   int64  `json:"createdAt"`
}

// Records is the local grading record collection. Every mutation reads the
// whole collection, computes the next state and writes it back once, so a
// failed write leaves the previous state intact.
type Records struct {
	kv   KV
	keys Keys
	mu   sync.Mutex
	log  zerolog.Logger
	now  func() time.Time
}

func NewRecords(kv KV, keys Keys) *Records {
	return &Records{
		kv:   kv,
		keys: keys,
		log:  logger.Component("record_store"),
		now:  time.Now,
	}
}

func (r *Records) GetAll(ctx context.Context) ([]model.GradingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, r.keys.Records)
}

// SaveAll replaces the whole collection.
func (r *Records) SaveAll(ctx context.Context, records []model.GradingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, records)
}

// Update runs fn on the current collection and persists its result.
func (r *Records) Update(ctx context.Context, fn func([]model.GradingRecord) ([]model.GradingRecord, error)) ([]model.GradingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load(ctx, r.keys.Records)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := r.save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Append adds new records, assigning an id and timestamp when missing.
func (r *Records) Append(ctx context.Context, records ...model.GradingRecord) ([]model.GradingRecord, error) {
	added := make([]model.GradingRecord, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Timestamp == 0 {
			rec.Timestamp = r.now().UnixMilli()
		}
		added[i] = rec
	}

	_, err := r.Update(ctx, func(current []model.GradingRecord) ([]model.GradingRecord, error) {
		next := make([]model.GradingRecord, 0, len(current)+len(added))
		next = append(next, current...)
		return append(next, added...), nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Hide soft-deletes the given records and returns how many changed.
func (r *Records) Hide(ctx context.Context, ids ...string) (int, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	changed := 0
	_, err := r.Update(ctx, func(current []model.GradingRecord) ([]model.GradingRecord, error) {
		next := cloneRecords(current)
		for i := range next {
			if want[next[i].ID] && !next[i].IsHidden {
				next[i].IsHidden = true
				changed++
			}
		}
		return next, nil
	})
	return changed, err
}

// DeleteByQuestion removes every record of a question outright.
func (r *Records) DeleteByQuestion(ctx context.Context, filter model.QuestionFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}
	removed := 0
	_, err := r.Update(ctx, func(current []model.GradingRecord) ([]model.GradingRecord, error) {
		next := make([]model.GradingRecord, 0, len(current))
		for _, rec := range current {
			if rec.MatchesQuestion(filter) {
				removed++
				continue
			}
			next = append(next, rec)
		}
		return next, nil
	})
	return removed, err
}

// PruneHidden drops hidden records. It is the remediation for a full store.
func (r *Records) PruneHidden(ctx context.Context) (int, error) {
	removed := 0
	_, err := r.Update(ctx, func(current []model.GradingRecord) ([]model.GradingRecord, error) {
		next := make([]model.GradingRecord, 0, len(current))
		for _, rec := range current {
			if rec.IsHidden {
				removed++
				continue
			}
			next = append(next, rec)
		}
		return next, nil
	})
	if err == nil && removed > 0 {
		r.log.Info().Int("removed", removed).Msg("Pruned hidden records")
	}
	return removed, err
}

// LastSyncTime returns the last successful reconciliation in milliseconds,
// or zero if there has been none.
func (r *Records) LastSyncTime(ctx context.Context) (int64, error) {
	data, ok, err := r.kv.Get(ctx, r.keys.LastSync)
	if err != nil || !ok {
		return 0, err
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		r.log.Warn().Str("value", string(data)).Msg("Ignoring malformed last sync time")
		return 0, nil
	}
	return ms, nil
}

// SetLastSyncTime stores ms unless it would move the value backwards.
func (r *Records) SetLastSyncTime(ctx context.Context, ms int64) error {
	current, err := r.LastSyncTime(ctx)
	if err != nil {
		return err
	}
	if ms <= current {
		return nil
	}
	return r.kv.Set(ctx, r.keys.LastSync, []byte(strconv.FormatInt(ms, 10)))
}

func (r *Records) PendingPush(ctx context.Context) (*PendingPush, error) {
	data, ok, err := r.kv.Get(ctx, r.keys.PendingPush)
	if err != nil || !ok {
		return nil, err
	}
	var p PendingPush
	if err := json.Unmarshal(data, &p); err != nil {
		r.log.Warn().Err(err).Msg("Discarding malformed pending push marker")
		return nil, nil
	}
	return &p, nil
}

func (r *Records) SetPendingPush(ctx context.Context, p PendingPush) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.keys.PendingPush, data)
}

func (r *Records) ClearPendingPush(ctx context.Context) error {
	return r.kv.Delete(ctx, r.keys.PendingPush)
}

func (r *Records) load(ctx context.Context, key string) ([]model.GradingRecord, error) {
	data, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return []model.GradingRecord{}, nil
	}
	var records []model.GradingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records under %q: %w", key, err)
	}
	if records == nil {
		records = []model.GradingRecord{}
	}
	return records, nil
}

func (r *Records) save(ctx context.Context, records []model.GradingRecord) error {
	if records == nil {
		records = []model.GradingRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := r.kv.Set(ctx, r.keys.Records, data); err != nil {
		r.log.Error().Err(err).Int("records", len(records)).Msg("Failed to persist records")
		return err
	}
	return nil
}

// Visible filters out soft-deleted records.
func Visible(records []model.GradingRecord) []model.GradingRecord {
	out := make([]model.GradingRecord, 0, len(records))
	for _, rec := range records {
		if !rec.IsHidden {
			out = append(out, rec)
		}
	}
	return out
}

func cloneRecords(records []model.GradingRecord) []model.GradingRecord {
	out := make([]model.GradingRecord, len(records))
	copy(out, records)
	return out
}
