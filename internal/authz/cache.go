// Package authz resolves staff permissions per organization, caching the
// flattened role→permission set in Redis with explicit version-bump
// invalidation on any role or permission mutation.
package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores flattened permission sets keyed by organization, user and a
// per-organization version. Invalidation bumps the version, orphaning every
// cached set for that organization at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching;
// every lookup then falls through to the loader.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(orgCode string) string {
	return "authz:" + orgCode + ":version"
}

// Version returns the organization's current cache version, initialising it
// when missing.
func (c *Cache) Version(ctx context.Context, orgCode string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(orgCode)
	ver, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Permissions loads a user's cached permission set, populating it through
// the loader on a miss.
func (c *Cache) Permissions(ctx context.Context, orgCode string, userID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx, orgCode)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("authz:%s:perms:%d:%d", orgCode, userID, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []string
		if jsonErr := json.Unmarshal(payload, &perms); jsonErr == nil {
			return perms, nil
		}
	}

	perms, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(perms); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return perms, nil
}

// Invalidate bumps the organization's version, discarding every cached
// permission set for it. Called after any role or permission mutation.
func (c *Cache) Invalidate(ctx context.Context, orgCode string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(orgCode)).Err()
}
