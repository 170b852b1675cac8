// Package memory provides an in-process upload cache. Entries are lost on
// restart, which only costs a redundant upload.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/fsbridge/pkg/cache"
)

// Cache is a map-backed cache.Cache guarded by a read-write mutex.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
	closed  bool
}

// New creates an empty in-memory cache.
func New() *Cache {
	return &Cache{entries: make(map[string]cache.Entry)}
}

func (c *Cache) Lookup(ctx context.Context, digest string) (cache.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return cache.Entry{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return cache.Entry{}, false, cache.ErrClosed
	}
	e, ok := c.entries[digest]
	return e, ok, nil
}

func (c *Cache) Put(ctx context.Context, digest string, entry cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cache.ErrClosed
	}
	c.entries[digest] = entry
	return nil
}

func (c *Cache) Evict(ctx context.Context, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cache.ErrClosed
	}
	delete(c.entries, digest)
	return nil
}

func (c *Cache) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, cache.ErrClosed
	}
	return len(c.entries), nil
}

// Close drops all entries. Further calls return cache.ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.entries = nil
	return nil
}
