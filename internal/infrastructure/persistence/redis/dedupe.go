package redis

import (
	"context"
	"time"
)

// UpdateDeduper remembers Telegram update IDs so that a redelivered webhook
// is handled once.
type UpdateDeduper struct {
	cache *Cache
	ttl   time.Duration
}

// NewUpdateDeduper creates a deduper. A non-positive ttl means TTLUpdate.
func NewUpdateDeduper(cache *Cache, ttl time.Duration) *UpdateDeduper {
	if ttl <= 0 {
		ttl = TTLUpdate
	}
	return &UpdateDeduper{cache: cache, ttl: ttl}
}

// FirstSeen records updateID and reports whether this is its first delivery.
func (d *UpdateDeduper) FirstSeen(ctx context.Context, updateID int64) (bool, error) {
	return d.cache.SetNX(ctx, UpdateKey(updateID), time.Now().UTC().Format(time.RFC3339), d.ttl)
}
