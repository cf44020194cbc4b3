// Package cache keeps short-lived lookups in process memory. The session
// core stores user search results here, keyed by the trimmed query.
package cache

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds a cache built without WithMaxEntries.
const DefaultMaxEntries = 256

type entry[T any] struct {
	value     T
	expiresAt time.Time
	storedAt  time.Time
}

// Option tunes a cache at construction.
type Option func(*settings)

type settings struct {
	maxEntries int
	now        func() time.Time
}

// WithMaxEntries caps the number of stored entries; the oldest one is
// evicted to make room. n <= 0 keeps DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// InMemory is a TTL cache safe for concurrent use.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	settings

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache whose entries live for ttl, which must be positive.
// A janitor goroutine sweeps expired entries until Close.
func New[T any](ttl time.Duration, opts ...Option) *InMemory[T] {
	s := settings{maxEntries: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	c := &InMemory[T]{
		items:    make(map[string]entry[T]),
		ttl:      ttl,
		settings: s,
		stop:     make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get returns the live value for key.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.sweepLocked(now)
		if len(c.items) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.items[key] = entry[T]{value: value, storedAt: now, expiresAt: now.Add(c.ttl)}
}

// Clear drops every entry. Logout uses it so no results outlive the session.
func (c *InMemory[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

// Len counts stored entries, expired ones not yet swept included.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor. The cache stays usable.
func (c *InMemory[T]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *InMemory[T]) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sweepLocked(c.now())
			c.mu.Unlock()
		}
	}
}

func (c *InMemory[T]) sweepLocked(now time.Time) {
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
		}
	}
}

func (c *InMemory[T]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.items {
		if !found || e.storedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}
