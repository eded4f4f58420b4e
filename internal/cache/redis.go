package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kenjobs/jobsync/internal/model"
)

const scanBatch = 100

// RedisStore shares the cache between instances. The physical Redis TTL is
// ttl + retention so expired entries remain readable for stale fallback.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention, now: time.Now}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := r.read(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.Expired(r.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (r *RedisStore) GetIgnoringExpiry(ctx context.Context, key string) (Entry, bool, error) {
	return r.read(ctx, key)
}

func (r *RedisStore) read(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w for %s: %w", model.ErrCacheRead, key, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("%w for %s: decoding payload: %w", model.ErrCacheRead, key, err)
	}
	e.Key = key
	return e, true, nil
}

// Put writes the entry with a single SET, which Redis applies atomically.
func (r *RedisStore) Put(ctx context.Context, key string, jobs []model.Job, ttl time.Duration) error {
	if jobs == nil {
		jobs = []model.Job{}
	}
	now := r.now().UTC()
	data, err := json.Marshal(Entry{Key: key, Jobs: jobs, CreatedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("%w for %s: encoding payload: %w", model.ErrCacheWrite, key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl+r.retention).Err(); err != nil {
		return fmt.Errorf("%w for %s: %w", model.ErrCacheWrite, key, err)
	}
	return nil
}

func (r *RedisStore) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: invalidating %s: %w", model.ErrCacheWrite, key, err)
	}
	return nil
}

// SweepExpired scans the key prefix and deletes entries past their
// retention, plus any entry that no longer decodes. Redis expires most
// entries on its own; this catches ones written with an older retention.
func (r *RedisStore) SweepExpired(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.retention)
	removed := 0
	iter := r.client.Scan(ctx, 0, KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("%w for %s: %w", model.ErrCacheRead, key, err)
		}
		var e Entry
		if json.Unmarshal(data, &e) == nil && !e.Expired(cutoff) {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("%w: sweeping %s: %w", model.ErrCacheWrite, key, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%w: scanning cache keys: %w", model.ErrCacheRead, err)
	}
	return removed, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
