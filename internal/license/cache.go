package license

import (
	"context"
	"sync"
	"time"

	"grading-assistant-core/internal/model"
)

type cachedStatus struct {
	status    model.LicenseStatus
	expiresAt time.Time
}

// CachedGate remembers statuses per identity for a fixed TTL.
type CachedGate struct {
	next    Gate
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cachedStatus
}

func NewCachedGate(next Gate, ttl time.Duration) *CachedGate {
	return &CachedGate{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedStatus),
	}
}

func (c *CachedGate) Identity(ctx context.Context) (model.Identity, error) {
	return c.next.Identity(ctx)
}

func (c *CachedGate) Status(ctx context.Context, id model.Identity) (*model.LicenseStatus, error) {
	key := id.Key()

	c.mu.RLock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
		status := e.status
		c.mu.RUnlock()
		return &status, nil
	}
	c.mu.RUnlock()

	return c.refresh(ctx, id)
}

func (c *CachedGate) refresh(ctx context.Context, id model.Identity) (*model.LicenseStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.Key()
	// Double check after acquiring write lock
	if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
		status := e.status
		return &status, nil
	}

	status, err := c.next.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	c.entries[key] = cachedStatus{status: *status, expiresAt: c.now().Add(c.ttl)}
	out := *status
	return &out, nil
}

// Invalidate drops the cached status of one identity.
func (c *CachedGate) Invalidate(id model.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id.Key())
}
