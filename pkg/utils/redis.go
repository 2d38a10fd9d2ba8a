package utils

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig selects the server and database. Zero durations and sizes fall back to
// go-redis defaults, except PingTimeout which defaults to 2s.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// OpenRedis connects and PINGs; the client is closed again if the server is unreachable.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Slot sets hold one member per in-flight holder, scored by the unix-millisecond deadline
// after which the holder is presumed dead. Expired members are pruned on every acquire, so a
// crashed instance only blocks its own slots until their deadline.
var slotAcquireScript = redis.NewScript(`
-- KEYS[1] = slot set
-- ARGV[1] = now_ms, ARGV[2] = limit, ARGV[3] = deadline_ms, ARGV[4] = holder, ARGV[5] = ttl_ms
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
if redis.call('PTTL', KEYS[1]) < tonumber(ARGV[5]) then
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
end
return 1
`)

var slotReleaseScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
if redis.call('ZCARD', KEYS[1]) == 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// AcquireSlot registers holder in the slot set at key unless limit unexpired holders
// already exist. The slot lapses at now+ttl if it is never released.
func AcquireSlot(ctx context.Context, rdb *redis.Client, key, holder string, limit int, ttl time.Duration, now time.Time) (bool, error) {
	if err := checkSlotArgs(rdb, key, holder); err != nil {
		return false, err
	}
	if limit <= 0 {
		return false, fmt.Errorf("limit must be > 0")
	}
	if ttl < time.Millisecond {
		return false, fmt.Errorf("ttl must be > 0")
	}

	nowMS := now.UnixMilli()
	res, err := slotAcquireScript.Run(ctx, rdb, []string{key},
		nowMS, limit, nowMS+ttl.Milliseconds(), holder, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ReleaseSlot frees holder's slot. Releasing an unknown or expired holder is a no-op.
func ReleaseSlot(ctx context.Context, rdb *redis.Client, key, holder string) error {
	if err := checkSlotArgs(rdb, key, holder); err != nil {
		return err
	}
	_, err := slotReleaseScript.Run(ctx, rdb, []string{key}, holder).Result()
	return err
}

// SlotsInUse counts holders whose deadline is after now.
func SlotsInUse(ctx context.Context, rdb *redis.Client, key string, now time.Time) (int64, error) {
	if rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	return rdb.ZCount(ctx, key, "("+strconv.FormatInt(now.UnixMilli(), 10), "+inf").Result()
}

func checkSlotArgs(rdb *redis.Client, key, holder string) error {
	switch {
	case rdb == nil:
		return fmt.Errorf("redis client is nil")
	case key == "":
		return fmt.Errorf("key is required")
	case holder == "":
		return fmt.Errorf("holder is required")
	}
	return nil
}
