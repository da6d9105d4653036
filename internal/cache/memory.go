package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/marketloom/pointer-engine/internal/logger"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the in-process backend. Expiry is lazy: entries are dropped
// when a read finds them past their deadline. When the size cap is hit, an
// eager sweep of expired entries runs before insertion; if the cache is still
// full the entry closest to expiry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	defaultTTL time.Duration
	log        *logger.Logger
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64
	sets      int64
}

func NewMemoryCache(maxEntries int, defaultTTL time.Duration, baseLog *logger.Logger) *MemoryCache {
	if maxEntries < 1 {
		maxEntries = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		log:        baseLog.With("service", "MemoryCache"),
		now:        time.Now,
	}
}

// SetNowFunc overrides the clock. Test helper.
func (c *MemoryCache) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	full := namespacedKey(namespace, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[full]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked()
		if len(c.entries) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}

	c.entries[full] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	c.sets++
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	full := namespacedKey(namespace, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[full]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, full)
		c.evictions++
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return e.value, true, nil
}

func (c *MemoryCache) Delete(ctx context.Context, namespace, key string) error {
	full := namespacedKey(namespace, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, full)
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if namespace == "" {
		c.entries = make(map[string]memoryEntry)
		return nil
	}
	prefix := namespace + ":"
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Sweep reclaims expired entries. Correctness does not depend on it; the app
// wires it to a slow ticker purely to bound memory.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *MemoryCache) sweepLocked() int {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.evictions += int64(removed)
	return removed
}

func (c *MemoryCache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = k
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evictions++
	}
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Sets:      c.sets,
		Entries:   len(c.entries),
	}
}
