package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker is used by the appointment service to serialize check-and-insert
// per doctor and calendar day.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewRedisLocker creates a locker that holds one Redis key per lock name.
// A busy key is retried up to retries times before ErrLockNotAcquired.
func NewRedisLocker(client *redis.Client, ttl time.Duration, retries int) Locker {
	if retries < 1 {
		retries = 1
	}
	return &redisLocker{
		client:  client,
		ttl:     ttl,
		retries: retries,
		backoff: 50 * time.Millisecond,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := "lock:" + name
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < l.retries; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire booking lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * l.backoff):
		}
	}
	if !acquired {
		return ErrLockNotAcquired
	}

	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(relCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}

// LocalLocker serializes by key inside one process. It backs tests and
// single-instance tools that run without Redis.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
