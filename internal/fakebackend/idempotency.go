package fakebackend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "wallet:idempotency:v1:"

// IdempotencyStore remembers which money-moving submissions were already
// applied. Claim is atomic: exactly one caller wins a given key.
type IdempotencyStore interface {
	// Claim reserves key and reports whether this call won it.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed submission can be retried with it.
	Release(ctx context.Context, key string) error
}

// MemoryIdempotency is an in-process IdempotencyStore.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryIdempotency creates an in-memory store whose keys expire after ttl.
func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (m *MemoryIdempotency) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.keys[key] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// RedisIdempotency keeps claimed keys in Redis so several fake backend
// processes share them.
type RedisIdempotency struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotency wraps an existing client.
func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

// DialRedisIdempotency connects to the Redis server at url (redis://host:port/db)
// and checks that it answers.
func DialRedisIdempotency(ctx context.Context, url string, ttl time.Duration) (*RedisIdempotency, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedisIdempotency(client, ttl), nil
}

func (r *RedisIdempotency) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyPrefix+key, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key: %w", err)
	}
	return ok, nil
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisIdempotency) Close() error {
	return r.client.Close()
}
