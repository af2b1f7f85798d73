package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryEntry holds a value with its metadata in memory.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time // Zero value means no expiry
	createdAt time.Time
	updatedAt time.Time
}

// isExpired returns true if the entry has expired at now.
func (e *memoryEntry) isExpired(now time.Time) bool {
	if e.expiresAt.IsZero() {
		return false
	}
	return !now.Before(e.expiresAt)
}

// MemoryClient is an in-process Client (not persisted).
type MemoryClient struct {
	now     func() time.Time
	entries map[string]*memoryEntry
	hashes  map[string]map[string][]byte
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryClient creates a new in-memory client.
func NewMemoryClient(opts ...Option) *MemoryClient {
	o := buildOptions(opts)
	return &MemoryClient{
		now:     o.now,
		entries: make(map[string]*memoryEntry),
		hashes:  make(map[string]map[string][]byte),
	}
}

// Get retrieves a value by key.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrNotConnected
	}
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	if entry.isExpired(c.now()) {
		// Lazy deletion of expired entry
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, nil
	}

	return copyBytes(entry.value), nil
}

// Set saves a value with the given key and clears its expiry.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotConnected
	}

	now := c.now()
	entry := &memoryEntry{
		value:     copyBytes(value),
		createdAt: now,
		updatedAt: now,
	}

	// Preserve created_at if updating existing entry
	if existing, ok := c.entries[key]; ok && !existing.isExpired(now) {
		entry.createdAt = existing.createdAt
	}

	c.entries[key] = entry
	return nil
}

// Delete removes keys and returns how many were live.
func (c *MemoryClient) Delete(ctx context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrNotConnected
	}

	now := c.now()
	var deleted int64
	for _, key := range keys {
		if entry, ok := c.entries[key]; ok {
			if !entry.isExpired(now) {
				deleted++
			}
			delete(c.entries, key)
		}
	}
	return deleted, nil
}

// Keys returns all non-expired keys with the given prefix, sorted.
func (c *MemoryClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrNotConnected
	}

	now := c.now()
	var keys []string
	for key, entry := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if entry.isExpired(now) {
			delete(c.entries, key)
			continue
		}
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}

// Expire sets a relative expiry on a live key. Missing keys are ignored.
func (c *MemoryClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.setExpiry(key, c.now().Add(ttl))
}

// ExpireAt sets an absolute expiry on a live key. Missing keys are ignored.
func (c *MemoryClient) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return c.setExpiry(key, at)
}

func (c *MemoryClient) setExpiry(key string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotConnected
	}

	entry, ok := c.entries[key]
	if !ok || entry.isExpired(c.now()) {
		return nil
	}
	entry.expiresAt = at
	entry.updatedAt = c.now()
	return nil
}

// HashGet returns a field of a hash table, or nil if absent.
func (c *MemoryClient) HashGet(ctx context.Context, table, field string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrNotConnected
	}

	value, ok := c.hashes[table][field]
	if !ok {
		return nil, nil
	}
	return copyBytes(value), nil
}

// HashSet writes a field of a hash table.
func (c *MemoryClient) HashSet(ctx context.Context, table, field string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotConnected
	}

	h, ok := c.hashes[table]
	if !ok {
		h = make(map[string][]byte)
		c.hashes[table] = h
	}
	h[field] = copyBytes(value)
	return nil
}

// CleanupExpired removes all expired entries.
// Returns the number of entries removed.
func (c *MemoryClient) CleanupExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var count int64
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, key)
			count++
		}
	}
	return count, nil
}

// Close marks the client closed; later calls fail with ErrNotConnected.
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
