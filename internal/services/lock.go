package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OrderLocker serializes processing of a single out_trade_no across
// the webhook push path and the pull reconciliation path, which would
// otherwise race and double-credit a user on at-least-once delivery.
type OrderLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements OrderLocker with SETNX
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed order locker
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock, returning false when another processor holds it
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "order_lock:"+key, 1, ttl).Result()
}

// Release frees the lock
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, "order_lock:"+key).Err()
}

// MemoryLocker is an in-process OrderLocker for tests and single-node
// development runs without Redis
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewMemoryLocker creates an in-memory order locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time)}
}

// Acquire takes the lock, returning false when it is already held
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.held[key] = time.Now().Add(ttl)
	return true, nil
}

// Release frees the lock
func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
