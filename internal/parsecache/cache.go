// Package parsecache is the process-wide parse cache: raw file bytes stored
// with a 5-minute TTL under a caller-chosen hex key, letting a failed mapping
// retried with corrected config skip the object-store fetch. Entries hold
// raw bytes, not parsed rows, so a hit is still parsed again, and the cache
// sets no size bound of its own.
//
// It is an injected dependency, not a singleton, so tests can substitute a
// null cache with no backing store.
package parsecache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the cache entry lifetime.
const DefaultTTL = 5 * time.Minute

// Cache stores and retrieves the raw bytes of a previously fetched/uploaded
// file under a hex key chosen by the caller (the API layer uses the SHA-256
// of the object key, not of the file contents).
type Cache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool, error)
	Put(ctx context.Context, fingerprint string, data []byte) error
}

// RedisCache is the production Cache backed by go-redis, matching the
// redis.Client dependency this codebase's broader stack already wires for
// other caching/session concerns.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache returns a Cache that stores entries under "parsecache:<fp>"
// with the given TTL (DefaultTTL if zero).
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "parsecache:"}
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Put(ctx context.Context, fingerprint string, data []byte) error {
	return c.client.Set(ctx, c.prefix+fingerprint, data, c.ttl).Err()
}

// NullCache never stores anything; every Get misses. Used in tests and
// whenever the cache is explicitly disabled.
type NullCache struct{}

func (NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NullCache) Put(context.Context, string, []byte) error { return nil }
