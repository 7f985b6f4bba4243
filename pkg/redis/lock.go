package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 30 * time.Second

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Mutex is an owner-tagged SETNX lock. It expires on its own after the TTL so
// a crashed holder cannot wedge the key.
type Mutex struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

// NewMutex constructs a Redis-backed mutex for key.
func NewMutex(store lockStore, key string, ttl time.Duration) (*Mutex, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Mutex{store: store, key: key, ttl: ttl}, nil
}

// Key returns the redis key guarded by the mutex.
func (m *Mutex) Key() string {
	return m.key
}

// Acquire tries to own the lock for the configured TTL.
func (m *Mutex) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := m.store.SetNX(ctx, m.key, owner, m.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		m.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (m *Mutex) Release(ctx context.Context) error {
	if m.owner == "" {
		return nil
	}
	value, err := m.store.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			m.owner = ""
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != m.owner {
		m.owner = ""
		return nil
	}
	if err := m.store.Del(ctx, m.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	m.owner = ""
	return nil
}

// TryLock acquires the scope/id mutex. ok is false when another owner holds it;
// release is only non-nil when ok is true.
func (c *Client) TryLock(ctx context.Context, scope, id string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	mutex, err := NewMutex(c, c.LockKey(scope, id), ttl)
	if err != nil {
		return nil, false, err
	}
	ok, err = mutex.Acquire(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return mutex.Release, true, nil
}
