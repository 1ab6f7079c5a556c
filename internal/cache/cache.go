// Package cache stores markup link snapshots keyed by token. Entries are a
// derived view of a markup row: losing one is never an error, the caller
// treats a miss as "no shareable offer".
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/rental-markup/internal/model"
)

// LinkKeyPrefix prefixes every markup link key.
const LinkKeyPrefix = "markup_link_"

// LinkKey returns the cache key for a markup token.
func LinkKey(token string) string { return LinkKeyPrefix + token }

// TokenCache is a key-value store with per-entry TTL holding MarkupLink
// payloads. Get returns (nil, nil) on a miss or an expired entry.
type TokenCache interface {
	Get(ctx context.Context, key string) (*model.MarkupLink, error)
	Put(ctx context.Context, key string, link *model.MarkupLink, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisTokenCache keeps entries as JSON strings with a Redis expiry.
type RedisTokenCache struct {
	rdb *redis.Client
}

func NewRedisTokenCache(rdb *redis.Client) *RedisTokenCache { return &RedisTokenCache{rdb: rdb} }

func (c *RedisTokenCache) Get(ctx context.Context, key string) (*model.MarkupLink, error) {
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var link model.MarkupLink
	if err := json.Unmarshal(bs, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *RedisTokenCache) Put(ctx context.Context, key string, link *model.MarkupLink, ttl time.Duration) error {
	bs, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, bs, ttl).Err()
}

func (c *RedisTokenCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

type lruEntry struct {
	link      model.MarkupLink
	expiresAt time.Time
}

// LRUTokenCache is a bounded in-process cache used when Redis is not
// reachable. Entries past their TTL are dropped on read.
type LRUTokenCache struct {
	mu    sync.Mutex
	cache *lru.Cache
	now   func() time.Time
}

// NewLRUTokenCache returns a cache holding at most size entries.
func NewLRUTokenCache(size int) (*LRUTokenCache, error) {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUTokenCache{cache: c, now: time.Now}, nil
}

func (c *LRUTokenCache) Get(_ context.Context, key string) (*model.MarkupLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	e := v.(lruEntry)
	if !c.now().Before(e.expiresAt) {
		c.cache.Remove(key)
		return nil, nil
	}
	link := e.link
	return &link, nil
}

func (c *LRUTokenCache) Put(_ context.Context, key string, link *model.MarkupLink, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, lruEntry{link: *link, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *LRUTokenCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
	return nil
}
