package testcases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codearena/judge/types"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "testcases:"

// Loader loads the ordered test cases of a problem.
type Loader interface {
	Load(ctx context.Context, problemID int) ([]types.TestCase, error)
}

// RedisCache keeps parsed test cases in redis in front of another Loader.
// Cache failures never fail a load; they fall through to the next loader.
type RedisCache struct {
	client *redis.Client
	next   Loader
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewRedisCache wraps next with a redis-backed cache.
func NewRedisCache(client *redis.Client, next Loader, ttl time.Duration, log *zap.SugaredLogger) *RedisCache {
	return &RedisCache{
		client: client,
		next:   next,
		ttl:    ttl,
		log:    log,
	}
}

func (c *RedisCache) Load(ctx context.Context, problemID int) ([]types.TestCase, error) {
	key := cacheKey(problemID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cases []types.TestCase
		if err := json.Unmarshal(raw, &cases); err == nil && len(cases) > 0 {
			return cases, nil
		}
		c.log.Warnw("discarding unreadable cached test cases", "problem_id", problemID)
	case !errors.Is(err, redis.Nil):
		c.log.Warnw("test case cache lookup failed", "problem_id", problemID, "error", err)
	}

	cases, err := c.next.Load(ctx, problemID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(cases)
	if err != nil {
		c.log.Warnw("failed to encode test cases for cache", "problem_id", problemID, "error", err)
		return cases, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.log.Warnw("failed to cache test cases", "problem_id", problemID, "error", err)
	}
	return cases, nil
}

// Invalidate drops the cached entry of a problem.
func (c *RedisCache) Invalidate(ctx context.Context, problemID int) error {
	if err := c.client.Del(ctx, cacheKey(problemID)).Err(); err != nil {
		return fmt.Errorf("invalidate test case cache: %w", err)
	}
	return nil
}

func cacheKey(problemID int) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, problemID)
}
