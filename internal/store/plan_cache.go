package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// PlanSource loads catalog entries.
type PlanSource interface {
	Plan(ctx context.Context, id string) (*models.Plan, error)
}

// PlanCache keeps recently read plans in memory. Plans only change when
// dbtool re-seeds the catalog from another process, so the TTL alone bounds
// how long a re-seed takes to show up here.
type PlanCache struct {
	source PlanSource
	cache  *lru.LRU[string, models.Plan]
}

// NewPlanCache wraps source with an expiring LRU of the given size.
func NewPlanCache(source PlanSource, size int, ttl time.Duration) *PlanCache {
	if size <= 0 {
		size = 32
	}
	return &PlanCache{
		source: source,
		cache:  lru.NewLRU[string, models.Plan](size, nil, ttl),
	}
}

// Plan returns a cached copy when present; misses and errors go to the source.
func (c *PlanCache) Plan(ctx context.Context, id string) (*models.Plan, error) {
	if p, ok := c.cache.Get(id); ok {
		return &p, nil
	}

	p, err := c.source.Plan(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *p)
	return p, nil
}

