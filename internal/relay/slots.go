package relay

import (
	"context"
	"fmt"
	"time"

	"answering-machine/internal/apperr"
	"answering-machine/pkg/logger"
	"answering-machine/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSlots caps in-flight pipeline runs across every instance sharing rdb.
type RedisSlots struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisSlots allows at most limit concurrent runs. A slot that is never released
// lapses after ttl, which should exceed the longest expected run.
func NewRedisSlots(rdb *redis.Client, prefix string, limit int, ttl time.Duration) *RedisSlots {
	if prefix == "" {
		prefix = "am"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisSlots{rdb: rdb, key: prefix + ":relay:inflight", limit: limit, ttl: ttl, now: time.Now}
}

func (s *RedisSlots) Acquire(ctx context.Context) (func(), error) {
	holder := uuid.NewString()
	ok, err := utils.AcquireSlot(ctx, s.rdb, s.key, holder, s.limit, s.ttl, s.now())
	if err != nil {
		return nil, fmt.Errorf("relay: acquire slot: %v: %w", err, apperr.ErrProviderUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("relay: %d runs already in flight: %w", s.limit, apperr.ErrProviderUnavailable)
	}
	return func() {
		// Release on a fresh context so a canceled request still frees its slot.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := utils.ReleaseSlot(rctx, s.rdb, s.key, holder); err != nil {
			logger.From(ctx).Warn("relay slot release failed", "holder", holder, "err", err)
		}
	}, nil
}

// InUse reports how many runs currently hold a slot.
func (s *RedisSlots) InUse(ctx context.Context) (int64, error) {
	return utils.SlotsInUse(ctx, s.rdb, s.key, s.now())
}
