package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Lock is a held mutual-exclusion lease.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out named locks. Award and redemption take UserKey so a user's
// balance read-modify-write is never interleaved; rank recomputation takes
// RankKey per (season, suburb).
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

func UserKey(userID string) string {
	return fmt.Sprintf("loyalty:lock:user:%s", userID)
}

func RankKey(seasonID int64, suburb string) string {
	return fmt.Sprintf("loyalty:lock:rank:%d:%s", seasonID, suburb)
}

// SeasonKey guards season rollover.
const SeasonKey = "loyalty:lock:season"

// RedisLocker serializes across every process sharing the Redis instance.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	l := NewDistributedLock(r.client, key, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return l, nil
}

// LocalLocker serializes inside one process. Used by tests and single-node
// deployments without Redis.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return &localLock{owner: l, key: key, slot: slot}, nil
	case <-ctx.Done():
		l.drop(key, slot)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

func (l *LocalLocker) drop(key string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

type localLock struct {
	owner *LocalLocker
	key   string
	slot  *localSlot
	once  sync.Once
}

func (k *localLock) Release(_ context.Context) error {
	released := false
	k.once.Do(func() {
		<-k.slot.ch
		k.owner.drop(k.key, k.slot)
		released = true
	})
	if !released {
		return ErrLockNotOwned
	}
	return nil
}
