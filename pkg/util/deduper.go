package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper gives at-least-once consumers a cheap first-seen check keyed by
// handler name and event sequence.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true the first time (handler, seq) is seen within the
// TTL, false for a duplicate delivery. If redis is unreachable it allows
// processing; handlers are idempotent anyway.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, seq int64) bool {
	key := fmt.Sprintf("dedup:%s:%d", handler, seq)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.Int64("seq", seq),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.Int64("seq", seq),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release forgets (handler, seq) so a requeued delivery can reprocess it
// after a failed attempt.
func (d *Deduper) Release(ctx context.Context, handler string, seq int64) {
	key := fmt.Sprintf("dedup:%s:%d", handler, seq)
	if err := d.rdb.Del(ctx, key).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Redis dedup release failed",
			zap.String("handler", handler),
			zap.Int64("seq", seq),
			zap.Error(err),
		)
	}
}
