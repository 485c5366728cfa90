package store

import (
	"context"
	"sync"

	"grading-assistant-core/pkg/errors"
)

// KV is the device persistence primitive. Values are replaced whole; there
// is no partial update.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV keeps values in process memory. A positive QuotaBytes caps the
// total size of all stored values. The zero value is ready to use.
type MemoryKV struct {
	QuotaBytes int64

	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryKV(quotaBytes int64) *MemoryKV {
	return &MemoryKV{
		QuotaBytes: quotaBytes,
		values:     make(map[string][]byte),
	}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.QuotaBytes > 0 {
		var used int64
		for k, v := range m.values {
			if k != key {
				used += int64(len(v))
			}
		}
		if used+int64(len(value)) > m.QuotaBytes {
			return errors.StorageFullError{Key: key}
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = stored
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
