package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// Cache stores descriptor listings keyed by owner and credential scope.
type Cache interface {
	Get(ctx context.Context, key string) ([]Descriptor, bool)
	Set(ctx context.Context, key string, value []Descriptor, ttl time.Duration)
	// Invalidate drops every entry belonging to owner.
	Invalidate(ctx context.Context, owner string)
}

func cacheKey(owner, scope string) string {
	return owner + "|" + scope
}

func ownerPrefix(owner string) string {
	return owner + "|"
}

type cacheEntry struct {
	value   []Descriptor
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]cacheEntry
}

// NewMemoryCache returns an empty cache. A nil clock uses wall time.
func NewMemoryCache(clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCache{clock: clk, entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return append([]Descriptor(nil), e.value...), true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []Descriptor, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		value:   append([]Descriptor(nil), value...),
		expires: c.clock.Now().Add(ttl),
	}
}

func (c *MemoryCache) Invalidate(_ context.Context, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := ownerPrefix(owner)
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}
