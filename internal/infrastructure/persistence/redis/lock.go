package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks. They are advisory: the
// durable guards live in the database.
type Locker struct {
	cache *Cache
}

// NewLocker creates a Locker.
func NewLocker(cache *Cache) *Locker {
	return &Locker{cache: cache}
}

// TryLock acquires resource for ttl. ok is false without error when the lock
// is held by someone else. release frees the lock unless it has expired and
// been taken over.
func (l *Locker) TryLock(ctx context.Context, resource string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}

	key := LockKey(resource)
	token := uuid.NewString()

	ok, err = l.cache.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", resource, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.cache.Client(), []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
