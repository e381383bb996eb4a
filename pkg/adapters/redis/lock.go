package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds our token
var releaseScript = backend.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes transitions of one entity across processes
type Locker struct {
	client   backend.UniversalClient
	prefix   string
	interval time.Duration
}

// NewLocker creates a locker storing its keys below prefix
func NewLocker(client backend.UniversalClient, prefix string) *Locker {
	return &Locker{
		client:   client,
		prefix:   prefix,
		interval: 50 * time.Millisecond,
	}
}

func (l *Locker) key(name string) string {
	return l.prefix + "lock:" + name
}

// Lock blocks until the lock is acquired or ctx is done. The lock expires
// after ttl unless released earlier with the returned function.
func (l *Locker) Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := l.key(name)
	token := uuid.NewString()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		if n == 0 {
			return ErrLockNotHeld
		}
		return nil
	}, nil
}

// Do runs fn while holding the lock of the entity
func (l *Locker) Do(ctx context.Context, name string, ttl time.Duration, fn func() error) (err error) {
	unlock, err := l.Lock(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn()
}
