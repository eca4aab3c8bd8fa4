package topics

import (
	"context"
	"sync"
	"time"
)

// RefCache memoizes topic reference vectors for a bounded time. Callers that
// change the taxonomy invalidate explicitly instead of waiting for expiry.
type RefCache struct {
	loader func(ctx context.Context) (map[int64][]float32, error)
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	vectors  map[int64][]float32
	loadedAt time.Time
}

// NewRefCache returns a cache backed by the given loader.
func NewRefCache(loader func(ctx context.Context) (map[int64][]float32, error), ttl time.Duration) *RefCache {
	return &RefCache{loader: loader, ttl: ttl, now: time.Now}
}

// Vectors returns the cached reference vectors, reloading when the entry has
// expired or was invalidated. A failed reload keeps the cache empty so the
// next call retries.
func (c *RefCache) Vectors(ctx context.Context) (map[int64][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vectors != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.vectors, nil
	}

	vectors, err := c.loader(ctx)
	if err != nil {
		return nil, err
	}

	c.vectors = vectors
	c.loadedAt = c.now()

	return c.vectors, nil
}

// Invalidate drops the cached vectors so the next Vectors call reloads.
func (c *RefCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vectors = nil
}
