// Package cache provides a small key/value cache abstraction with an
// in-memory default and an optional Redis backend, used to cache
// (exchange, symbol) -> market id lookups and the order book
// reconstructor's Top-N snapshots for fast read paths.
package cache

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the minimal byte-oriented key/value contract both backends
// satisfy.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// New returns an in-process memory cache.
func New() Cache { return &memory{m: make(map[string]entry)} }

func (c *memory) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedis builds a Redis-backed Cache against addr.
func NewRedis(addr string, db int, timeout time.Duration) Cache {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &redisCache{client: redis.NewClient(&redis.Options{Addr: addr, DB: db}), timeout: timeout}
}

// NewAuto returns a Redis-backed cache when REDIS_ADDR is set, else an
// in-memory one — the same fallback idiom the ingestion pipeline's other
// ambient infrastructure (collector retry, breaker) defaults to safely when
// unconfigured.
func NewAuto() Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return NewRedis(addr, 0, 0)
	}
	return New()
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_ = r.client.Set(ctx, key, val, ttl).Err()
}
