package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores the discovered catalog for a TTL.
type Cache interface {
	Get(ctx context.Context) (*Catalog, bool, error)
	Set(ctx context.Context, catalog *Catalog, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// MemoryCache keeps the catalog in process.
type MemoryCache struct {
	mu        sync.RWMutex
	catalog   *Catalog
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context) (*Catalog, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.catalog == nil || !c.now().Before(c.expiresAt) {
		return nil, false, nil
	}
	return c.catalog.clone(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, catalog *Catalog, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = catalog.clone()
	c.expiresAt = c.now().Add(ttl)
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = nil
	return nil
}

// DefaultRedisKeyPrefix namespaces toolgate keys in a shared Redis.
const DefaultRedisKeyPrefix = "toolgate:"

// RedisCache shares the catalog between gateway instances.
type RedisCache struct {
	client redis.UniversalClient
	key    string
}

// NewRedisCache creates a cache on an existing client.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisCache{client: client, key: prefix + "tool_catalog"}
}

// DialRedisCache connects to url (redis://[:password@]host:port/db) and verifies the
// connection.
func DialRedisCache(ctx context.Context, url, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCache(client, prefix), nil
}

func (c *RedisCache) Get(ctx context.Context) (*Catalog, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read tool catalog: %w", err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, false, fmt.Errorf("failed to decode tool catalog: %w", err)
	}
	return &catalog, true, nil
}

func (c *RedisCache) Set(ctx context.Context, catalog *Catalog, ttl time.Duration) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("failed to encode tool catalog: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store tool catalog: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tool catalog: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
