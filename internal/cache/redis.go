package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"articleforge/internal/core"
	"articleforge/internal/logger"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "articleforge:enhancement:"

// RedisCache stores records in Redis with native key expiry.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string) (*RedisCache, error) {
	if redisURL == "" {
		return nil, errors.New("redis cache requires cache.redis_url")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{rdb: rdb}, nil
}

func (r *RedisCache) Name() string { return BackendRedis }

// Close closes the client.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

func (r *RedisCache) Get(ctx context.Context, key string) (*core.EnhancementRecord, bool) {
	data, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Warn("Redis cache read failed", "key", key, "error", err.Error())
		return nil, false
	}

	var record core.EnhancementRecord
	if err := json.Unmarshal(data, &record); err != nil {
		logger.Warn("Redis cache entry is corrupt", "key", key, "error", err.Error())
		return nil, false
	}
	return &record, true
}

func (r *RedisCache) Put(ctx context.Context, key string, record *core.EnhancementRecord, ttl time.Duration) {
	if !cacheable(record) {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		logger.Warn("Failed to encode cache record", "key", key, "error", err.Error())
		return
	}
	// ttl 0 keeps the key without expiry
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		logger.Warn("Redis cache write failed", "key", key, "error", err.Error())
	}
}
