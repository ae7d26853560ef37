package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client and context for operations. It backs the
// intraday hourly-multiplier override table (C6), daily click counters and
// a market-curve-model cache (grounded on the teacher's frequency-cap
// counter shape, internal/db/redis.go, patrickwarner-openadserve). Rate-limit
// buckets are not kept here; internal/ratelimit holds them in memory.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// SetHourlyMultiplier writes the pacing controller's override for a
// campaign's current hour bucket, expiring one hour after it is written (spec
// §4.6: "updates the hourly-multiplier override table for the current hour
// only").
func (r *RedisStore) SetHourlyMultiplier(campaignID string, hourOfDay int, multiplier float64) error {
	key := fmt.Sprintf("pacing:mult:%s:%d", campaignID, hourOfDay)
	if err := r.Client.Set(r.Ctx, key, multiplier, time.Hour).Err(); err != nil {
		return fmt.Errorf("set hourly multiplier: %w", err)
	}
	return nil
}

// GetHourlyMultiplier reads the current hourly override for a campaign,
// returning 1.0 (no override) when unset.
func (r *RedisStore) GetHourlyMultiplier(campaignID string, hourOfDay int) (float64, error) {
	key := fmt.Sprintf("pacing:mult:%s:%d", campaignID, hourOfDay)
	val, err := r.Client.Get(r.Ctx, key).Result()
	if err == redis.Nil {
		return 1.0, nil
	}
	if err != nil {
		return 1.0, fmt.Errorf("get hourly multiplier: %w", err)
	}
	mult, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 1.0, fmt.Errorf("parse hourly multiplier: %w", err)
	}
	return mult, nil
}

// IncrementDailyClicks increments the daily click counter for a campaign,
// used by the pacing controller's anomaly detector. A 24h TTL applies on
// first set.
func (r *RedisStore) IncrementDailyClicks(campaignID string) (int64, error) {
	key := fmt.Sprintf("pacing:clicks:%s:%s", campaignID, time.Now().UTC().Format("2006-01-02"))
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment daily clicks: %w", err)
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, 24*time.Hour)
	}
	return val, nil
}

// CacheCurveModel stores a serialized MarketCurveModel snapshot keyed by
// target, with a short TTL so a cold cache just falls back to the store.
func (r *RedisStore) CacheCurveModel(targetID string, serialized []byte, ttl time.Duration) error {
	key := fmt.Sprintf("curve:%s", targetID)
	if err := r.Client.Set(r.Ctx, key, serialized, ttl).Err(); err != nil {
		return fmt.Errorf("cache curve model: %w", err)
	}
	return nil
}

// GetCachedCurveModel returns the cached serialized model, or (nil, false)
// on a cache miss.
func (r *RedisStore) GetCachedCurveModel(targetID string) ([]byte, bool, error) {
	key := fmt.Sprintf("curve:%s", targetID)
	val, err := r.Client.Get(r.Ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached curve model: %w", err)
	}
	return val, true, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
