package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix = "ledger:tb:version"
	bumpChannel      = "gl.bump"
)

// Cache stores derived reports in Redis under a per-company version. Bumping
// the version orphans every cached report of that company.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(companyID int64) string {
	return versionKeyPrefix + ":" + strconv.FormatInt(companyID, 10)
}

// Version returns the company's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(companyID)).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX keeps a concurrent Invalidate from being overwritten.
		if err := c.client.SetNX(ctx, versionKey(companyID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(companyID)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes a cache key for the company with its current version.
func (c *Cache) Key(ctx context.Context, companyID int64, parts ...string) (string, error) {
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	all := append([]string{"ledger", "tb", strconv.FormatInt(companyID, 10)}, parts...)
	return fmt.Sprintf("%s:v%d", strings.Join(all, ":"), ver), nil
}

// Get decodes a cached value into dest and reports whether it was present.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value as JSON under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate bumps the company version and announces it on the bump channel.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(companyID)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(companyID, 10)+":"+strconv.FormatInt(ver, 10)).Err()
}
