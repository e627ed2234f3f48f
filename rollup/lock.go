package rollup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/warp/ssn-filing/filing"
)

// =============================================================================
// LOCKER - One rollup per target submission at a time
// =============================================================================

// Locker hands out per-key exclusive locks. Obtain never waits: a held key
// fails with filing.ErrRollupInProgress.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

func lockKey(id filing.SubmissionID) string { return fmt.Sprintf("rollup:%s", id) }

// RedisLocker shares locks across processes through Redis.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, filing.ErrRollupInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	return redisLock{lock}, nil
}

type redisLock struct{ lock *redislock.Lock }

func (l redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker is the single-process fallback used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Obtain(_ context.Context, key string) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, filing.ErrRollupInProgress
	}
	l.held[key] = true
	return &localLock{owner: l, key: key}, nil
}

type localLock struct {
	owner *LocalLocker
	key   string
	once  sync.Once
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.owner.mu.Unlock()
	})
	return nil
}
