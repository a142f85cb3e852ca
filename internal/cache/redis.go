package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/internal/model"
)

// RedisStore shares the cache across replicas. Entry keys carry the domain
// so invalidation can walk one domain without touching the rest.
type RedisStore struct {
	client      *redis.Client
	recentLimit int
}

func NewRedisStore(client *redis.Client, recentLimit int) *RedisStore {
	if recentLimit <= 0 {
		recentLimit = 256
	}
	return &RedisStore{client: client, recentLimit: recentLimit}
}

func entryKey(domain, key string) string {
	return "response:" + domain + ":" + key
}

func recentKey(domain string) string {
	return "recent:" + domain
}

func leaseKey(domain, key string) string {
	return "lease:" + domain + ":" + key
}

func (r *RedisStore) Get(ctx context.Context, domain, key string) (*model.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, entryKey(domain, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	if entry.Expired(time.Now().Unix()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (r *RedisStore) Set(ctx context.Context, entry *model.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, entryKey(entry.Domain, entry.Key), data, ttl)
	pipe.LPush(ctx, recentKey(entry.Domain), entry.Key)
	pipe.LTrim(ctx, recentKey(entry.Domain), 0, int64(r.recentLimit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *RedisStore) RecentByDomain(ctx context.Context, domain string, limit int) ([]*model.CacheEntry, error) {
	keys, err := r.client.LRange(ctx, recentKey(domain), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache recent: %w", err)
	}
	now := time.Now().Unix()
	out := make([]*model.CacheEntry, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, entryKey(domain, key)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("cache recent get: %w", err)
		}
		var entry model.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}

func (r *RedisStore) DeleteDomain(ctx context.Context, domain string) (int, error) {
	pattern := entryKey(domain, "*")
	var cursor uint64
	removed := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("cache delete: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if err := r.client.Del(ctx, recentKey(domain)).Err(); err != nil {
		return removed, fmt.Errorf("cache delete recent: %w", err)
	}
	return removed, nil
}

func (r *RedisStore) AcquireLease(ctx context.Context, domain, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, leaseKey(domain, key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache lease: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) ReleaseLease(ctx context.Context, domain, key string) error {
	return r.client.Del(ctx, leaseKey(domain, key)).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
