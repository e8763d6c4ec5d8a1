package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "poll:inflight:"

// Locker provides optional per-tenant pass exclusivity. When configured
// on the poller, a tick skips a tenant whose previous pass still holds
// the lock instead of overlapping it.
type Locker interface {
	AcquirePassLock(ctx context.Context, guildID string, ttl time.Duration) (bool, error)
	ReleasePassLock(ctx context.Context, guildID string) error
}

// RedisLocker implements Locker using Redis SET NX EX, so exclusivity
// holds across poller replicas too.
type RedisLocker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// AcquirePassLock tries to mark a pass in flight for guildID.
// Returns true if acquired, false if a pass is already running. The TTL
// bounds lock leakage if a replica dies mid-pass.
func (l *RedisLocker) AcquirePassLock(ctx context.Context, guildID string, ttl time.Duration) (bool, error) {
	key := keyPrefix + guildID
	ok, err := l.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX: %w", err)
	}
	return ok, nil
}

// ReleasePassLock clears the in-flight marker for guildID
func (l *RedisLocker) ReleasePassLock(ctx context.Context, guildID string) error {
	key := keyPrefix + guildID
	return l.rdb.Del(ctx, key).Err()
}

// MockLocker is an in-memory locker for testing
type MockLocker struct {
	locks map[string]bool
	mu    chan struct{}
}

func NewMock() *MockLocker {
	m := &MockLocker{
		locks: make(map[string]bool),
		mu:    make(chan struct{}, 1),
	}
	m.mu <- struct{}{}
	return m
}

func (m *MockLocker) AcquirePassLock(_ context.Context, guildID string, _ time.Duration) (bool, error) {
	<-m.mu
	defer func() { m.mu <- struct{}{} }()
	if m.locks[guildID] {
		return false, nil
	}
	m.locks[guildID] = true
	return true, nil
}

func (m *MockLocker) ReleasePassLock(_ context.Context, guildID string) error {
	<-m.mu
	defer func() { m.mu <- struct{}{} }()
	delete(m.locks, guildID)
	return nil
}
