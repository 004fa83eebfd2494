// Package cache keeps short-lived server state in Redis: the snapshot of
// each user's current training job and per-key request counters.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is implemented by RedisCache and by in-memory fakes in tests.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetActiveJob(ctx context.Context, userID uuid.UUID, job *models.Job, ttl time.Duration) error
	GetActiveJob(ctx context.Context, userID uuid.UUID) (*models.Job, bool, error)
	DeleteActiveJob(ctx context.Context, userID uuid.UUID) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache parses a redis:// or rediss:// URL. It does not dial.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }
func (c *RedisCache) Close() error                   { return c.client.Close() }

// SetActiveJob stores a JSON snapshot of the user's current job. A
// non-positive ttl removes the snapshot instead.
func (c *RedisCache) SetActiveJob(ctx context.Context, userID uuid.UUID, job *models.Job, ttl time.Duration) error {
	if ttl <= 0 {
		return c.DeleteActiveJob(ctx, userID)
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job snapshot: %w", err)
	}
	return c.client.Set(ctx, ActiveJobKey(userID), b, ttl).Err()
}

// GetActiveJob reports found=false when no snapshot is cached. A snapshot
// that fails to decode is dropped so the next read falls back to the store.
func (c *RedisCache) GetActiveJob(ctx context.Context, userID uuid.UUID) (*models.Job, bool, error) {
	key := ActiveJobKey(userID)
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var job models.Job
	if err := json.Unmarshal(b, &job); err != nil {
		c.client.Del(ctx, key)
		return nil, false, fmt.Errorf("decode job snapshot: %w", err)
	}
	return &job, true, nil
}

func (c *RedisCache) DeleteActiveJob(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, ActiveJobKey(userID)).Err()
}

// IncrWithExpiry increments key and sets its expiry on the first increment
// only, so later requests in the window do not extend it.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
