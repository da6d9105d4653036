package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/utils"
)

// RedisCache is the shared backend for deployments running more than one
// engine process. TTL handling is native to redis, so lazy-expiry bookkeeping
// collapses to plain GET/SET.
type RedisCache struct {
	log        *logger.Logger
	rdb        *goredis.Client
	defaultTTL time.Duration

	hits   int64
	misses int64
	sets   int64
}

func NewRedisCache(defaultTTL time.Duration, baseLog *logger.Logger) (*RedisCache, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", baseLog))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{
		log:        baseLog.With("service", "RedisCache"),
		rdb:        rdb,
		defaultTTL: defaultTTL,
	}, nil
}

func (c *RedisCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.rdb.Set(ctx, namespacedKey(namespace, key), value, ttl).Err(); err != nil {
		return err
	}
	atomic.AddInt64(&c.sets, 1)
	return nil
}

func (c *RedisCache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, namespacedKey(namespace, key)).Bytes()
	if err == goredis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	atomic.AddInt64(&c.hits, 1)
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, namespace, key string) error {
	return c.rdb.Del(ctx, namespacedKey(namespace, key)).Err()
}

func (c *RedisCache) Clear(ctx context.Context, namespace string) error {
	pattern := "*"
	if namespace != "" {
		pattern = namespace + ":*"
	}

	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("Failed to delete cache key", "key", iter.Val(), "error", err)
		}
	}
	return iter.Err()
}

func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Sets:   atomic.LoadInt64(&c.sets),
	}
}

func (c *RedisCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
