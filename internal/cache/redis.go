package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/usagebilling/core/internal/config"
	"github.com/usagebilling/core/internal/logger"
)

// RedisCache implements Cache against a shared redis instance, so the
// entitlement cache is coherent across horizontally scaled workers. Values
// are JSON-encoded; a version-fenced key (see EntitlementCacheKey) means
// readers never need to invalidate explicitly.
type RedisCache struct {
	client *redis.Client
	cfg    *config.Configuration
	log    *logger.Logger
}

func NewRedisCache(cfg *config.Configuration, log *logger.Logger) Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &RedisCache{client: client, cfg: cfg, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if !c.cfg.Cache.Enabled {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Errorw("redis get", "key", key, "error", err)
		}
		return nil, false
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		c.log.Errorw("redis unmarshal", "key", key, "error", err)
		return nil, false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	if !c.cfg.Cache.Enabled {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Errorw("redis marshal", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, expiration).Err(); err != nil {
		c.log.Errorw("redis set", "key", key, "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if !c.cfg.Cache.Enabled {
		return
	}
	c.client.Del(ctx, key)
}

// DeleteByPrefix scans for matching keys and deletes them in batches. Used
// rarely — entitlement keys are version-fenced, so explicit invalidation by
// prefix is a fallback for operator-triggered cache busts only.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) {
	if !c.cfg.Cache.Enabled {
		return
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			c.client.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}

func (c *RedisCache) Flush(ctx context.Context) {
	if !c.cfg.Cache.Enabled {
		return
	}
	c.client.FlushDB(ctx)
}
