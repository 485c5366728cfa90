package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"grading-assistant-core/internal/model"

	"github.com/google/uuid"
)

// legacyRecord is the record shape written by older releases: ids could be
// missing and questionNo was stored as a number.
type legacyRecord struct {
	ID          string                `json:"id"`
	QuestionKey string                `json:"questionKey"`
	QuestionNo  json.RawMessage       `json:"questionNo"`
	StudentName string                `json:"studentName"`
	Score       float64               `json:"score"`
	MaxScore    float64               `json:"maxScore"`
	Comment     string                `json:"comment"`
	Breakdown   []model.BreakdownItem `json:"breakdown"`
	Timestamp   int64                 `json:"timestamp"`
	IsHidden    bool                  `json:"isHidden"`
}

func (l legacyRecord) upgrade() model.GradingRecord {
	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}
	return model.GradingRecord{
		ID:          id,
		QuestionKey: l.QuestionKey,
		QuestionNo:  rawScalar(l.QuestionNo),
		StudentName: l.StudentName,
		Score:       l.Score,
		MaxScore:    l.MaxScore,
		Comment:     l.Comment,
		Breakdown:   l.Breakdown,
		Timestamp:   l.Timestamp,
		IsHidden:    l.IsHidden,
	}
}

// rawScalar renders a JSON string or number as plain text.
func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// MigrateLegacy copies records from the legacy key into the canonical
// collection once. The legacy value is never modified. Once the migration
// marker is written, or the canonical collection holds anything, further
// calls do nothing.
func (r *Records) MigrateLegacy(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, done, err := r.kv.Get(ctx, r.keys.Migrated)
	if err != nil {
		return 0, err
	}
	if done {
		return 0, nil
	}

	current, err := r.load(ctx, r.keys.Records)
	if err != nil {
		return 0, err
	}
	if len(current) > 0 {
		return 0, r.markMigrated(ctx)
	}

	data, ok, err := r.kv.Get(ctx, r.keys.Legacy)
	if err != nil {
		return 0, err
	}
	if !ok || len(bytes.TrimSpace(data)) == 0 {
		return 0, r.markMigrated(ctx)
	}

	var legacy []legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return 0, fmt.Errorf("failed to decode legacy records: %w", err)
	}
	if len(legacy) == 0 {
		return 0, r.markMigrated(ctx)
	}

	upgraded := make([]model.GradingRecord, len(legacy))
	for i, l := range legacy {
		upgraded[i] = l.upgrade()
	}
	if err := r.save(ctx, upgraded); err != nil {
		return 0, err
	}
	if err := r.markMigrated(ctx); err != nil {
		return 0, err
	}

	r.log.Info().Int("records", len(upgraded)).Msg("Migrated legacy records")
	return len(upgraded), nil
}

func (r *Records) markMigrated(ctx context.Context) error {
	return r.kv.Set(ctx, r.keys.Migrated, []byte("1"))
}
