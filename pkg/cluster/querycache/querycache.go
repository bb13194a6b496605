// Package querycache is an optional, purely additive read-through cache
// in front of the tracker's two heaviest read-only client queries
// (server_list_all_groups, service_query_store_without_group_all),
// shared across a tracker cluster via Redis so that a client hitting any
// peer sees an answer no staler than the last invalidation. It
// generalizes the teacher's `storage/redis` + `storage/teststore`
// pairing used as one of three interchangeable backends for the overlay
// node cache in pkg/overlay/cache_test.go (TestRedisGet/TestMockGet):
// same Get/Set shape, same "fall back to a local map when no
// backend is configured" posture.
package querycache

import (
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/zeebo/errs"
)

// Error is the error class for the querycache package.
var Error = errs.Class("querycache")

// Cache is a small versioned key/value cache: entries are invalidated by
// bumping the group generation they were stored under (the store's
// changeCount), so cache code never needs to reason about partial
// staleness, only "was this computed before or after the topology I'm
// looking at now".
type Cache struct {
	mu    sync.Mutex
	local map[string]entry

	redis *redis.Client
	ttl   time.Duration
}

type entry struct {
	generation int64
	value      string
}

// New builds a Cache. If redisAddr is empty, the cache runs purely
// in-process (single tracker, or tests).
func New(redisAddr string, ttl time.Duration) *Cache {
	c := &Cache{local: make(map[string]entry), ttl: ttl}
	if redisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return c
}

// Get returns the cached value for key if it was stored at exactly
// generation; otherwise it reports a miss.
func (c *Cache) Get(key string, generation int64) (string, bool) {
	if c.redis != nil {
		v, err := c.redis.Get(versionedKey(key, generation)).Result()
		if err == nil {
			return v, true
		}
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.local[key]
	if !ok || e.generation != generation {
		return "", false
	}
	return e.value, true
}

// Set stores value for key at generation. In-process, this replaces
// whatever was stored under any other generation; with Redis, each
// generation is a separate key that expires after the cache's ttl.
func (c *Cache) Set(key string, generation int64, value string) error {
	if c.redis != nil {
		if err := c.redis.Set(versionedKey(key, generation), value, c.ttl).Err(); err != nil {
			return Error.Wrap(err)
		}
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = entry{generation: generation, value: value}
	return nil
}

func versionedKey(key string, generation int64) string {
	return key + ":" + strconv.FormatInt(generation, 10)
}
