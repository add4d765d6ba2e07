package registry

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "picvault:registry:"

// RedisCache shares descriptor listings between API replicas.
// Redis failures degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{client: client, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Descriptor, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("registry cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var out []Descriptor
	if err := sonic.Unmarshal(raw, &out); err != nil {
		c.log.Warn("registry cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return out, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []Descriptor, ttl time.Duration) {
	raw, err := sonic.Marshal(value)
	if err != nil {
		c.log.Warn("registry cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("registry cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, owner string) {
	match := redisKeyPrefix + ownerPrefix(owner) + "*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			c.log.Warn("registry cache invalidate failed", zap.String("owner", owner), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.log.Warn("registry cache delete failed", zap.String("owner", owner), zap.Error(err))
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
