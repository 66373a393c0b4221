package recording

import (
	"context"
	"sync"
	"time"

	"mentor-training-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a poll slot per practice call. At most one poll loop may hold
// a call's slot at a time, across every process in the deployment.
type Locker interface {
	// Acquire takes the slot. ok=false means another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees the slot, but only for the holder that acquired it.
	Release(ctx context.Context, key, token string) error
}

// RedisLocker is the production Locker. It rides on the shared lease helpers
// so releases are token-checked and cannot free another process's slot.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return utils.AcquireLease(ctx, l.rdb, key, ttl)
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	return utils.ReleaseLease(ctx, l.rdb, key, token)
}

// MemoryLocker is a process-local Locker for tests and single-node tooling.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]string)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
