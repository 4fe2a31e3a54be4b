package cache

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yeremiapane/concessions-app/utils"
)

// Cache is a read-through layer over Redis for catalog responses. Every method
// is safe on a nil client: with REDIS_ADDR unset the app simply serves from
// the database.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to REDIS_ADDR. An empty address yields a disabled cache rather
// than an error.
func New() *Cache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return &Cache{ttl: time.Minute}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		utils.ErrorLogger.Printf("redis unavailable at %s, cache disabled: %v", addr, err)
		return &Cache{ttl: time.Minute}
	}
	utils.InfoLogger.Printf("redis cache connected at %s", addr)
	return &Cache{client: client, ttl: time.Minute}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get unmarshals the cached value for key into dest. A miss, a disabled cache
// and a decode failure all report false.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	return true
}

// Set stores value under key for the cache TTL. Failures only log; the caller
// already has the value.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		utils.ErrorLogger.Printf("cache set %s failed: %v", key, err)
	}
}

// Invalidate drops every key matching pattern.
func (c *Cache) Invalidate(ctx context.Context, pattern string) {
	if !c.Enabled() {
		return
	}
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			utils.ErrorLogger.Printf("cache invalidate %s failed: %v", iter.Val(), err)
		}
	}
}
