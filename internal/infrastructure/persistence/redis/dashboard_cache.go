package redis

import (
	"context"
	"errors"
	"time"

	"github.com/lifeos-hub/lifeos/internal/application/query"
)

// DashboardCache stores rendered dashboards per user. It serves the query
// side and is invalidated by every command.
type DashboardCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewDashboardCache creates a dashboard cache. A non-positive ttl means TTLDashboard.
func NewDashboardCache(cache *Cache, ttl time.Duration) *DashboardCache {
	if ttl <= 0 {
		ttl = TTLDashboard
	}
	return &DashboardCache{cache: cache, ttl: ttl}
}

// LoadDashboard returns the cached dashboard, or nil on a miss.
func (d *DashboardCache) LoadDashboard(ctx context.Context, userID string) (*query.Dashboard, error) {
	var dash query.Dashboard
	if err := d.cache.Get(ctx, DashboardKey(userID), &dash); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &dash, nil
}

// StoreDashboard caches a dashboard for the configured TTL.
func (d *DashboardCache) StoreDashboard(ctx context.Context, userID string, dash *query.Dashboard) error {
	return d.cache.Set(ctx, DashboardKey(userID), dash, d.ttl)
}

// InvalidateUser drops the user's cached dashboard.
func (d *DashboardCache) InvalidateUser(ctx context.Context, userID string) error {
	return d.cache.Delete(ctx, DashboardKey(userID))
}
