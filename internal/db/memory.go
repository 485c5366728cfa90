package db

import (
	"context"
	"sort"
	"sync"

	"grading-assistant-core/internal/model"
)

type memoryOwner struct {
	records map[string]model.GradingRecord
	keys    map[string]bool
}

// MemoryRepository keeps the remote record store in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	owners map[string]*memoryOwner
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{owners: make(map[string]*memoryOwner)}
}

func (m *MemoryRepository) owner(name string) *memoryOwner {
	o, ok := m.owners[name]
	if !ok {
		o = &memoryOwner{
			records: make(map[string]model.GradingRecord),
			keys:    make(map[string]bool),
		}
		m.owners[name] = o
	}
	return o
}

func (m *MemoryRepository) CreateBatch(ctx context.Context, owner, idempotencyKey string, records []model.RecordInput) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.owner(owner)
	if o.keys[idempotencyKey] {
		return 0, true, nil
	}

	created := 0
	for _, in := range records {
		if _, exists := o.records[in.ID]; exists {
			continue
		}
		o.records[in.ID] = in.ToRecord()
		created++
	}
	o.keys[idempotencyKey] = true
	return created, false, nil
}

func (m *MemoryRepository) List(ctx context.Context, owner string, query model.RecordQuery) ([]model.GradingRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filter := model.QuestionFilter{QuestionKey: query.QuestionKey, QuestionNo: query.QuestionNo}
	var matched []model.GradingRecord
	for _, rec := range m.owner(owner).records {
		if filter.IsEmpty() || rec.MatchesQuestion(filter) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp != matched[j].Timestamp {
			return matched[i].Timestamp < matched[j].Timestamp
		}
		return matched[i].ID < matched[j].ID
	})

	page, limit := NormalizePage(query)
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]model.GradingRecord, end-start)
	copy(out, matched[start:end])
	return out, len(matched), nil
}

func (m *MemoryRepository) DeleteByFilter(ctx context.Context, owner string, filter model.QuestionFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.owner(owner)
	deleted := 0
	for id, rec := range o.records {
		if rec.MatchesQuestion(filter) {
			delete(o.records, id)
			deleted++
		}
	}
	return deleted, nil
}
