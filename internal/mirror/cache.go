// Package mirror provides the Local Mirror: a Redis-backed, TTL- and
// capacity-bounded cache of resolved devotions, Bible verses, and journal
// fallback writes. It is the availability layer the API leans on when the
// content store or an external Bible provider is unreachable.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "mirror:"
	indexKey   = "mirror:index"
	errCounter = "mirror:errors"
)

// SweepErrorThreshold is the upstream-failure count after which callers
// should force a full sweep; repeated provider failures usually mean the
// mirrored data is what is being served, and stale entries pile up.
const SweepErrorThreshold = 10

type entry struct {
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	capacity int
}

func New(redisURL string, ttl time.Duration, capacity int) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl, capacity), nil
}

// NewWithClient creates a cache from an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if capacity <= 0 {
		capacity = 512
	}
	return &Cache{client: client, ttl: ttl, capacity: capacity}
}

func (c *Cache) key(key string) string {
	return keyPrefix + key
}

// Get reads a cached value into target. A miss (absent or expired) returns
// (false, nil); expired keys are also dropped from the write-time index.
func (c *Cache) Get(ctx context.Context, key string, target any) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		// Redis already evicted the value; keep the index honest.
		_ = c.client.ZRem(ctx, indexKey, key).Err()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mirror get %s: %w", key, err)
	}

	var stored entry
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return false, fmt.Errorf("mirror decode %s: %w", key, err)
	}
	if err := json.Unmarshal(stored.Data, target); err != nil {
		return false, fmt.Errorf("mirror decode data %s: %w", key, err)
	}
	return true, nil
}

// Set overwrites unconditionally (last write wins) and trims the oldest
// entries once the capacity bound is exceeded.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mirror encode %s: %w", key, err)
	}
	stored, err := json.Marshal(entry{CreatedAt: time.Now(), Data: data})
	if err != nil {
		return fmt.Errorf("mirror encode entry %s: %w", key, err)
	}

	if err := c.client.Set(ctx, c.key(key), stored, c.ttl).Err(); err != nil {
		return fmt.Errorf("mirror set %s: %w", key, err)
	}
	if err := c.client.ZAdd(ctx, indexKey, redis.Z{Score: float64(time.Now().UnixNano()), Member: key}).Err(); err != nil {
		return fmt.Errorf("mirror index %s: %w", key, err)
	}

	return c.trim(ctx)
}

func (c *Cache) trim(ctx context.Context) error {
	size, err := c.client.ZCard(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("mirror index size: %w", err)
	}
	if size <= int64(c.capacity) {
		return nil
	}

	excess := size - int64(c.capacity)
	oldest, err := c.client.ZRange(ctx, indexKey, 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("mirror oldest entries: %w", err)
	}
	for _, key := range oldest {
		_ = c.client.Del(ctx, c.key(key)).Err()
	}
	if len(oldest) > 0 {
		members := make([]any, len(oldest))
		for i, key := range oldest {
			members[i] = key
		}
		if err := c.client.ZRem(ctx, indexKey, members...).Err(); err != nil {
			return fmt.Errorf("mirror trim index: %w", err)
		}
	}
	return nil
}

// Sweep removes index entries whose values have expired. With force it
// drops every mirrored entry and resets the error counter; callers use
// that after repeated upstream failures.
func (c *Cache) Sweep(ctx context.Context, force bool) (int, error) {
	keys, err := c.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("mirror sweep index: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if force {
			_ = c.client.Del(ctx, c.key(key)).Err()
			_ = c.client.ZRem(ctx, indexKey, key).Err()
			removed++
			continue
		}
		exists, err := c.client.Exists(ctx, c.key(key)).Result()
		if err != nil {
			return removed, fmt.Errorf("mirror sweep exists %s: %w", key, err)
		}
		if exists == 0 {
			_ = c.client.ZRem(ctx, indexKey, key).Err()
			removed++
		}
	}

	if force {
		_ = c.client.Del(ctx, errCounter).Err()
	}
	return removed, nil
}

// IncrErrorCount bumps the upstream failure counter and returns the new value.
func (c *Cache) IncrErrorCount(ctx context.Context) (int64, error) {
	count, err := c.client.Incr(ctx, errCounter).Result()
	if err != nil {
		return 0, fmt.Errorf("mirror error count: %w", err)
	}
	return count, nil
}

func (c *Cache) ResetErrorCount(ctx context.Context) error {
	return c.client.Del(ctx, errCounter).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
