package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPermissionCache keeps resolved permission sets in Redis under a
// per-principal key. Entries expire on their own; role changes delete the
// key eagerly.
type RedisPermissionCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPermissionCache constructs a cache on the given client. prefix
// namespaces the keys, e.g. "sdesk:perms".
func NewRedisPermissionCache(client redis.UniversalClient, prefix string) *RedisPermissionCache {
	if prefix == "" {
		prefix = "perms"
	}
	return &RedisPermissionCache{client: client, prefix: prefix}
}

func (c *RedisPermissionCache) key(userID string) string {
	return c.prefix + ":" + userID
}

// Get returns the cached permission keys, or ErrCacheMiss.
func (c *RedisPermissionCache) Get(ctx context.Context, userID string) ([]string, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("permission cache get: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, ErrCacheMiss
	}
	return keys, nil
}

// Set stores the permission keys with the given TTL.
func (c *RedisPermissionCache) Set(ctx context.Context, userID string, keys []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("permission cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached set for a principal.
func (c *RedisPermissionCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("permission cache invalidate: %w", err)
	}
	return nil
}
