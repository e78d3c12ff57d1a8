// Package cache holds short-lived request state shared by every API
// instance, such as checkout idempotency keys.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency reserves request keys so a retried checkout resolves to the
// order created by the first attempt.
type Idempotency interface {
	// Reserve stores value under key unless the key is already held. When it
	// is, reserved is false and existing holds the stored value.
	Reserve(ctx context.Context, key, value string, ttl time.Duration) (existing string, reserved bool, err error)
	// Confirm keeps value under key for ttl once the guarded request has
	// succeeded.
	Confirm(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	GenerateKey(operation, key string) string
}

// RedisCache implements Idempotency on a shared Redis server
type RedisCache struct {
	client      *redis.Client
	serviceName string
}

// NewRedisCache connects to the Redis server at addr
func NewRedisCache(addr, serviceName string) *RedisCache {
	return &RedisCache{
		client:      redis.NewClient(&redis.Options{Addr: addr}),
		serviceName: serviceName,
	}
}

func (r *RedisCache) Reserve(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve %s: %w", key, err)
	}
	if ok {
		return "", true, nil
	}

	existing, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return r.Reserve(ctx, key, value, ttl)
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return existing, false, nil
}

func (r *RedisCache) Confirm(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("confirm %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, operation, key)
}

// Ping checks the connection to Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// MemoryCache keeps reservations in process. The order service falls back
// to it when no Redis is configured or reachable, so keys are only shared
// by requests reaching the same instance.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	serviceName string
	now         func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryCache creates an in-process Idempotency store
func NewMemoryCache(serviceName string) *MemoryCache {
	return &MemoryCache{
		entries:     make(map[string]memoryEntry),
		serviceName: serviceName,
		now:         time.Now,
	}
}

func (m *MemoryCache) Reserve(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return e.value, false, nil
	}
	m.entries[key] = memoryEntry{value: value, expires: now.Add(ttl)}
	return "", true, nil
}

func (m *MemoryCache) Confirm(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCache) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", m.serviceName, operation, key)
}
