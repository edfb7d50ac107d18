package quota

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/memora-app/memora/internal/users"
)

// LimitsLoader fetches tier ceilings from the source of truth.
type LimitsLoader interface {
	TierLimits(ctx context.Context, tier users.Tier) (*TierLimits, error)
}

// LimitsCache caches the read-only tier ceilings in Redis. Tier limits are
// seeded data, so a short TTL is plenty; concurrent misses for the same tier
// collapse into one repository load.
type LimitsCache struct {
	client *redis.Client
	loader LimitsLoader
	ttl    time.Duration
	group  singleflight.Group
}

// NewLimitsCache instantiates the cache helper. A nil client degrades to a
// pass-through loader.
func NewLimitsCache(client *redis.Client, loader LimitsLoader, ttl time.Duration) *LimitsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LimitsCache{client: client, loader: loader, ttl: ttl}
}

// TierLimits returns the ceilings for a tier, from cache when possible.
func (c *LimitsCache) TierLimits(ctx context.Context, tier users.Tier) (*TierLimits, error) {
	if c.client == nil {
		return c.loader.TierLimits(ctx, tier)
	}

	key := "quota:limits:" + string(tier)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var tl TierLimits
		if err := json.Unmarshal(raw, &tl); err == nil {
			return &tl, nil
		}
		// A corrupt entry falls through to a fresh load below.
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not take quota checks with it.
		return c.loader.TierLimits(ctx, tier)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		tl, err := c.loader.TierLimits(ctx, tier)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(tl); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return tl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TierLimits), nil
}
