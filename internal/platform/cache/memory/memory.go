// Package memory provides the in-process cache driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any) (cache.CacheWithCounter, error) {
		defaultTTL := 15 * time.Minute
		cleanupInterval := 5 * time.Minute

		if secs, ok := intSetting(config, "default_ttl_seconds"); ok && secs > 0 {
			defaultTTL = time.Duration(secs) * time.Second
		}
		if secs, ok := intSetting(config, "cleanup_interval_seconds"); ok && secs > 0 {
			cleanupInterval = time.Duration(secs) * time.Second
		}
		return New(defaultTTL, cleanupInterval), nil
	})
}

// intSetting reads a numeric TOML value, which may decode as int64 or float64.
func intSetting(config map[string]any, key string) (int, bool) {
	if config == nil {
		return 0, false
	}
	switch n := config[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type counter struct {
	value     int64
	expiresAt time.Time
}

// Cache is an in-memory cache with TTL support. Expired values are reported
// as cache.ErrExpired until the janitor removes them.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	counters   map[string]*counter
	defaultTTL time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a new in-memory cache.
// cleanupInterval controls the janitor goroutine; 0 disables it.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		counters:   make(map[string]*counter),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

// SetClock replaces the time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	for k, ctr := range c.counters {
		if now.After(ctr.expiresAt) {
			delete(c.counters, k)
		}
	}
}

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get returns a copy of the stored value.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if c.now().After(e.expiresAt) {
		return nil, cache.ErrExpired
	}
	return append([]byte(nil), e.value...), nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	ttl = c.ttlOrDefault(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return !c.now().After(e.expiresAt), nil
}

// Increment adds delta to a fixed-window counter. The window is set by the
// first increment and is not extended by later ones.
func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	ttl = c.ttlOrDefault(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ctr, ok := c.counters[key]
	if !ok || now.After(ctr.expiresAt) {
		ctr = &counter{value: delta, expiresAt: now.Add(ttl)}
		c.counters[key] = ctr
		return ctr.value, ctr.expiresAt, nil
	}
	ctr.value += delta
	return ctr.value, ctr.expiresAt, nil
}

func (c *Cache) GetCount(_ context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ctr, ok := c.counters[key]
	if !ok || c.now().After(ctr.expiresAt) {
		return 0, nil
	}
	return ctr.value, nil
}

func (c *Cache) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.counters, key)
	c.mu.Unlock()
	return nil
}

// Close stops the janitor. Safe to call more than once.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
