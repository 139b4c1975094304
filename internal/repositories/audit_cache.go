package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/models"
)

// CachedAuditRepo caches FindByID results in redis. Entries never change
// after Save, so there is no invalidation; the TTL only bounds memory.
// Redis failures fall through to the wrapped repository.
type CachedAuditRepo struct {
	AuditRepository
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewCachedAuditRepo(inner AuditRepository, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedAuditRepo {
	return &CachedAuditRepo{AuditRepository: inner, rdb: rdb, ttl: ttl, log: log}
}

func entryCacheKey(id int64) string {
	return fmt.Sprintf("audit:entry:%d", id)
}

func (r *CachedAuditRepo) FindByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	key := entryCacheKey(id)

	data, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e models.AuditEntry
		if jerr := json.Unmarshal(data, &e); jerr == nil {
			return &e, nil
		}
		r.log.Warn("dropping unreadable cache entry", zap.String("key", key))
		_ = r.rdb.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		r.log.Warn("audit cache read failed", zap.Int64("audit_id", id), zap.Error(err))
	}

	e, err := r.AuditRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(e); err == nil {
		if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
			r.log.Warn("audit cache write failed", zap.Int64("audit_id", id), zap.Error(err))
		}
	}
	return e, nil
}
