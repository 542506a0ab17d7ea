package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tasktracker/task-system/internal/core/ports"
)

// CacheBackend stores serialized identities as plain string keys with an
// expiry. Key format is chosen by the caller (user:username:<u>, user:id:<id>).
type CacheBackend struct {
	client redis.Cmdable
}

var _ ports.CacheBackend = (*CacheBackend)(nil)

// NewCacheBackend wraps the given Redis client.
func NewCacheBackend(client redis.Cmdable) *CacheBackend {
	return &CacheBackend{client: client}
}

func (c *CacheBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return raw, true, nil
}

// Set writes value with SETEX semantics.
func (c *CacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// SetNX writes value only if key does not exist yet.
func (c *CacheBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache setnx: %w", err)
	}
	return ok, nil
}

func (c *CacheBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
