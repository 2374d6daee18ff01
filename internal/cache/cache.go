// Package cache memoizes object listings in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radif/dropzone/internal/storage"
)

const (
	listingKeyPrefix = "listing"
	scanBatchSize    = 100
	defaultTTL       = time.Minute
)

// ListingCache stores folder listings per namespace.
type ListingCache interface {
	Get(ctx context.Context, namespace, folder string) ([]storage.Object, bool, error)
	Set(ctx context.Context, namespace, folder string, objects []storage.Object) error
	// Invalidate drops every cached listing of namespace.
	Invalidate(ctx context.Context, namespace string) error
}

// Config selects and tunes the cache.
type Config struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

type redisListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopListingCache struct{}

// New returns a Redis-backed cache, or a no-op one when disabled.
func New(ctx context.Context, cfg Config) (ListingCache, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &redisListingCache{client: client, ttl: ttl}, nil
}

// NewNoop returns a cache that never hits.
func NewNoop() ListingCache {
	return noopListingCache{}
}

func (c *redisListingCache) Get(ctx context.Context, namespace, folder string) ([]storage.Object, bool, error) {
	payload, err := c.client.Get(ctx, listingKey(namespace, folder)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var objects []storage.Object
	if err := json.Unmarshal(payload, &objects); err != nil {
		return nil, false, fmt.Errorf("decode listing cache: %w", err)
	}
	return objects, true, nil
}

func (c *redisListingCache) Set(ctx context.Context, namespace, folder string, objects []storage.Object) error {
	payload, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("encode listing cache: %w", err)
	}
	if err := c.client.Set(ctx, listingKey(namespace, folder), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisListingCache) Invalidate(ctx context.Context, namespace string) error {
	var cursor uint64
	pattern := namespacePrefix(namespace) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (noopListingCache) Get(context.Context, string, string) ([]storage.Object, bool, error) {
	return nil, false, nil
}

func (noopListingCache) Set(context.Context, string, string, []storage.Object) error { return nil }

func (noopListingCache) Invalidate(context.Context, string) error { return nil }

func namespacePrefix(namespace string) string {
	return listingKeyPrefix + ":" + namespace + ":"
}

func listingKey(namespace, folder string) string {
	return namespacePrefix(namespace) + folder
}
