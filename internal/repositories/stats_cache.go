package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audit-trail/backend/internal/models"
)

const statsKey = "audit:stats"

// StatsCache holds the latest aggregation produced by cmd/stats.
type StatsCache struct {
	rdb *redis.Client
}

func NewStatsCache(rdb *redis.Client) *StatsCache {
	return &StatsCache{rdb: rdb}
}

func (c *StatsCache) Put(ctx context.Context, s *models.AuditStats, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey, data, ttl).Err()
}

// Get returns ErrNotFound until the first aggregation has been stored.
func (c *StatsCache) Get(ctx context.Context) (*models.AuditStats, error) {
	data, err := c.rdb.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s models.AuditStats
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
