// Package analytics serves per-user spend aggregates behind a TTL cache.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is used when a cache is created with a non-positive TTL
const DefaultTTL = 60 * time.Second

type entry struct {
	value   any
	expires time.Time
}

type userEntries struct {
	gen     uint64
	entries map[string]entry
}

// Cache holds computed aggregates keyed by (user, method, params).
// Invalidation is per user and drops every entry of that user. Concurrent
// misses on the same key are not collapsed.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	seq   uint64
	users map[int64]*userEntries
}

// NewCache creates a cache with the given entry lifetime
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:   ttl,
		now:   time.Now,
		users: make(map[int64]*userEntries),
	}
}

// user must be called with mu held
func (c *Cache) user(userID int64) *userEntries {
	u, ok := c.users[userID]
	if !ok {
		c.seq++
		u = &userEntries{gen: c.seq, entries: make(map[string]entry)}
		c.users[userID] = u
	}
	return u
}

func (c *Cache) get(userID int64, key string) (any, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := c.user(userID)
	e, ok := u.entries[key]
	if !ok {
		return nil, u.gen, false
	}
	if !c.now().Before(e.expires) {
		delete(u.entries, key)
		return nil, u.gen, false
	}
	return e.value, u.gen, true
}

// put stores a value unless the user was invalidated after gen was read
func (c *Cache) put(userID int64, gen uint64, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := c.user(userID)
	if u.gen != gen {
		return
	}
	u.entries[key] = entry{value: value, expires: c.now().Add(c.ttl)}
}

// InvalidateUser drops every cached entry of a user. Values whose
// computation started before the call are not stored.
func (c *Cache) InvalidateUser(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.users[userID] = &userEntries{gen: c.seq, entries: make(map[string]entry)}
}

// Sweep removes expired entries and returns how many were dropped
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, u := range c.users {
		for k, e := range u.entries {
			if !now.Before(e.expires) {
				delete(u.entries, k)
				removed++
			}
		}
		if len(u.entries) == 0 {
			delete(c.users, id)
		}
	}
	return removed
}

// Len returns the number of live and expired-but-unswept entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, u := range c.users {
		n += len(u.entries)
	}
	return n
}

// Remember returns the cached value for (userID, method, params) or computes
// and stores it. Errors are not cached.
func Remember[T any](ctx context.Context, c *Cache, userID int64, method string, params any, compute func(context.Context) (T, error)) (T, error) {
	key, err := cacheKey(method, params)
	if err != nil {
		var zero T
		return zero, err
	}

	v, gen, ok := c.get(userID, key)
	if ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	res, err := compute(ctx)
	if err != nil {
		return res, err
	}
	c.put(userID, gen, key, res)
	return res, nil
}

func cacheKey(method string, params any) (string, error) {
	if params == nil {
		return method, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to serialize cache params for %s: %w", method, err)
	}
	return method + ":" + string(b), nil
}
