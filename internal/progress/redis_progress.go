package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"forge/internal/pkg/logger"
)

// RedisProgress maintains a per-batch completion counter in Redis. The
// increment is fire and forget: a Redis outage slows nothing down and loses
// nothing but the live counter.
type RedisProgress struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedisProgress(rdb *redis.Client, log *logger.Logger) *RedisProgress {
	if log == nil {
		log = logger.NewDefault()
	}
	return &RedisProgress{
		rdb: rdb,
		ttl: 24 * time.Hour,
		log: log.WithComponent("progress"),
	}
}

func progressKey(batchID string) string {
	return fmt.Sprintf("forge:progress:%s", batchID)
}

// Increment bumps the counter. Errors are logged and dropped; the batch
// result is the source of truth, the counter only feeds live progress UIs.
func (p *RedisProgress) Increment(ctx context.Context, batchID string, delta int) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	key := progressKey(batchID)
	if err := p.rdb.IncrBy(opCtx, key, int64(delta)).Err(); err != nil {
		p.log.Debug("progress increment dropped", "batch_id", batchID, "error", err.Error())
		return
	}
	_ = p.rdb.Expire(opCtx, key, p.ttl).Err()
}

// Get reads the current counter, defaulting to zero when absent.
func (p *RedisProgress) Get(ctx context.Context, batchID string) int64 {
	v, err := p.rdb.Get(ctx, progressKey(batchID)).Int64()
	if err != nil {
		return 0
	}
	return v
}
