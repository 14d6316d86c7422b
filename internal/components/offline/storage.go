package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache"
)

const (
	namesKey    = "offline:caches"
	keysPrefix  = "offline:keys:"
	entryPrefix = "offline:entry:"
)

var ErrNoMatch = errors.New("no cached response")

// Storage holds named caches of responses on top of the shared cache
// driver. A name index lists the caches and each cache has a key index,
// so caches can be enumerated and deleted on drivers without key scans.
type Storage struct {
	cache cache.Cache
	ttl   time.Duration

	// mu serializes index read-modify-write cycles.
	mu sync.Mutex
}

// NewStorage creates a storage. ttl bounds entries and indexes; zero means
// cache.TTLOffline.
func NewStorage(c cache.Cache, ttl time.Duration) *Storage {
	if ttl <= 0 {
		ttl = cache.TTLOffline
	}
	return &Storage{cache: c, ttl: ttl}
}

func (s *Storage) readList(ctx context.Context, key string) ([]string, error) {
	raw, err := s.cache.Get(ctx, key)
	if cache.IsMiss(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func (s *Storage) writeList(ctx context.Context, key string, list []string) error {
	if len(list) == 0 {
		return s.cache.Delete(ctx, key)
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, raw, s.ttl)
}

// addToList appends v to the list at key unless present. Callers hold mu.
func (s *Storage) addToList(ctx context.Context, key, v string) error {
	list, err := s.readList(ctx, key)
	if err != nil {
		return err
	}
	for _, x := range list {
		if x == v {
			return nil
		}
	}
	return s.writeList(ctx, key, append(list, v))
}

// Open returns the named cache, creating it if needed.
func (s *Storage) Open(ctx context.Context, name string) (*NamedCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addToList(ctx, namesKey, name); err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}
	return &NamedCache{storage: s, name: name}, nil
}

// Names lists cache names in creation order.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readList(ctx, namesKey)
}

// Delete removes the named cache and its entries. It reports whether the
// cache existed.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.readList(ctx, namesKey)
	if err != nil {
		return false, err
	}
	kept := names[:0]
	found := false
	for _, n := range names {
		if n == name {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	if !found {
		return false, nil
	}

	keys, err := s.readList(ctx, keysPrefix+name)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if err := s.cache.Delete(ctx, entryKey(name, k)); err != nil {
			return false, fmt.Errorf("delete entry %q: %w", k, err)
		}
	}
	if err := s.cache.Delete(ctx, keysPrefix+name); err != nil {
		return false, err
	}
	if err := s.writeList(ctx, namesKey, kept); err != nil {
		return false, err
	}
	return true, nil
}

// Match looks key up in every cache, oldest cache first.
func (s *Storage) Match(ctx context.Context, key string) (*Response, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		resp, err := (&NamedCache{storage: s, name: n}).Match(ctx, key)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		return resp, err
	}
	return nil, ErrNoMatch
}

func entryKey(name, key string) string {
	return entryPrefix + name + ":" + key
}

// NamedCache is one versioned cache.
type NamedCache struct {
	storage *Storage
	name    string
}

// Name returns the cache name.
func (c *NamedCache) Name() string { return c.name }

// Put stores resp under key, replacing any previous entry.
func (c *NamedCache) Put(ctx context.Context, key string, resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := c.storage.cache.Set(ctx, entryKey(c.name, key), raw, c.storage.ttl); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	c.storage.mu.Lock()
	defer c.storage.mu.Unlock()
	return c.storage.addToList(ctx, keysPrefix+c.name, key)
}

// Match returns the entry for key or ErrNoMatch.
func (c *NamedCache) Match(ctx context.Context, key string) (*Response, error) {
	raw, err := c.storage.cache.Get(ctx, entryKey(c.name, key))
	if cache.IsMiss(err) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode entry %q: %w", key, err)
	}
	return &resp, nil
}

// Keys lists the request keys stored in the cache.
func (c *NamedCache) Keys(ctx context.Context) ([]string, error) {
	c.storage.mu.Lock()
	defer c.storage.mu.Unlock()
	return c.storage.readList(ctx, keysPrefix+c.name)
}
