package parsecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisCacheTest(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCacheMissReturnsFalse(t *testing.T) {
	cache, _ := setupRedisCacheTest(t)
	data, ok, err := cache.Get(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || data != nil {
		t.Fatalf("expected a miss for an unset fingerprint, got ok=%v data=%v", ok, data)
	}
}

func TestRedisCachePutThenGet(t *testing.T) {
	cache, _ := setupRedisCacheTest(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "deadbeef", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ok, err := cache.Get(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(data) != "payload" {
		t.Fatalf("expected cached payload, got ok=%v data=%q", ok, data)
	}
}

func TestRedisCacheTTLExpires(t *testing.T) {
	cache, mr := setupRedisCacheTest(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "fp", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected entry to have expired after TTL elapsed")
	}
}

func TestNewRedisCacheDefaultsTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	c := NewRedisCache(client, 0)
	if c.ttl != DefaultTTL {
		t.Fatalf("expected default TTL %v, got %v", DefaultTTL, c.ttl)
	}
}

func TestNullCacheAlwaysMisses(t *testing.T) {
	var c NullCache
	data, ok, err := c.Get(context.Background(), "anything")
	if err != nil || ok || data != nil {
		t.Fatalf("expected NullCache.Get to always miss, got ok=%v data=%v err=%v", ok, data, err)
	}
	if err := c.Put(context.Background(), "anything", []byte("x")); err != nil {
		t.Fatalf("NullCache.Put should never error, got %v", err)
	}
}
