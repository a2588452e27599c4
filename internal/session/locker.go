package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a user's lock could not be taken in time.
var ErrLockTimeout = errors.New("session: lock wait timed out")

// Locker serialises message handling per user. The returned func releases
// the lock and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, id string) (func(), error)
}

// MemoryLocker is a keyed mutex. Entries are dropped once no goroutine holds
// or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyedLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[id]
	if !ok {
		kl = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[id] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, kl, false)
		return nil, fmt.Errorf("session: lock %s: %w", id, ctx.Err())
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(id, kl, true) }) }, nil
}

func (l *MemoryLocker) release(id string, kl *keyedLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

const lockKeyPrefix = "labbot:lock:"

// unlockScript deletes the key only when it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes a SETNX lock with a random token and an expiry, so a
// crashed holder cannot block a user forever. Use it when several bot
// instances share one webhook.
type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, wait: ttl, interval: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, id string) (func(), error) {
	key := lockKeyPrefix + id
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("session: lock %s: %w", id, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("session: lock %s: %w", id, ctx.Err())
		case <-time.After(l.interval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even when the request context is already cancelled.
			_ = unlockScript.Run(context.Background(), l.client, []string{key}, token).Err()
		})
	}, nil
}
