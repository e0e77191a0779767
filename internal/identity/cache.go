package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores verified principals keyed by token hash
type Cache interface {
	Get(ctx context.Context, key string) (*Principal, bool)
	Set(ctx context.Context, key string, p *Principal, ttl time.Duration)
}

func cacheKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

const memoryCacheMaxEntries = 4096

// MemoryCache is a process-local principal cache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	principal *Principal
	expires   time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.principal, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, p *Principal, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= memoryCacheMaxEntries {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	if len(c.entries) >= memoryCacheMaxEntries {
		return
	}
	c.entries[key] = memoryEntry{principal: p, expires: now.Add(ttl)}
}

// RedisCache shares verified principals between console instances
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, prefix string, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "outreach:"
	}
	return &RedisCache{client: client, prefix: prefix + "principal:", logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Principal, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("principal cache read failed", "error", err)
		}
		return nil, false
	}

	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("principal cache entry corrupt", "error", err)
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) Set(ctx context.Context, key string, p *Principal, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("principal cache write failed", "error", err)
	}
}
