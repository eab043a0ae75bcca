package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RunLock serializes scans per policy across engine replicas with a
// redis lease. With no redis configured the lock always grants, which
// is fine for a single-node deployment.
type RunLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRunLock(rdb *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{rdb: rdb, ttl: ttl}
}

func lockKey(policyID int64) string {
	return fmt.Sprintf("policyscan:scan:lock:%d", policyID)
}

// TryAcquire takes the per-policy lease. Returns a release func and
// whether the lease was granted. Redis errors grant the lock; a flaky
// lock backend must not stop scanning.
func (l *RunLock) TryAcquire(ctx context.Context, policyID int64) (func(), bool) {
	if l.rdb == nil {
		return func() {}, true
	}
	key := lockKey(policyID)
	ok, err := l.rdb.SetNX(ctx, key, time.Now().Unix(), l.ttl).Result()
	if err != nil {
		log.Error().Err(err).Int64("policy", policyID).Msg("scan lock error, proceeding without lock")
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := l.rdb.Del(context.Background(), key).Err(); err != nil {
			log.Warn().Err(err).Int64("policy", policyID).Msg("failed to release scan lock")
		}
	}, true
}
