package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/model"
)

func newRedisStore(t *testing.T, recentLimit int) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, recentLimit), mr
}

func TestRedisStoreSetGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, 10)

	entry := &model.CacheEntry{
		Key:       "k1",
		Domain:    "hr",
		Embedding: []float32{0.5, 0.25},
		Response:  "15 days",
		Citations: []model.Citation{{ChunkID: "c1", DocumentID: "d1", Title: "Handbook", Score: 0.9}},
		Tier:      "cheap",
		Ctime:     time.Now().Unix(),
	}
	require.NoError(t, store.Set(ctx, entry, time.Hour))

	got, ok, err := store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "15 days", got.Response)
	require.Equal(t, []float32{0.5, 0.25}, got.Embedding)
	require.Len(t, got.Citations, 1)
	require.Equal(t, "c1", got.Citations[0].ChunkID)

	_, ok, err = store.Get(ctx, "hr", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, 10)

	entry := &model.CacheEntry{Key: "k1", Domain: "hr", Response: "15 days", Ctime: time.Now().Unix()}
	require.NoError(t, store.Set(ctx, entry, time.Minute))

	_, ok, err := store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreHonorsEntryExpiryField(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, 10)

	// Redis-level ttl is generous but the entry itself says it is stale.
	entry := &model.CacheEntry{Key: "k1", Domain: "hr", Response: "old", Expiry: time.Now().Unix() - 10}
	require.NoError(t, store.Set(ctx, entry, time.Hour))

	_, ok, err := store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreRecentByDomain(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, 3)

	for i := 0; i < 5; i++ {
		entry := &model.CacheEntry{Key: fmt.Sprintf("k%d", i), Domain: "hr", Response: fmt.Sprintf("r%d", i)}
		require.NoError(t, store.Set(ctx, entry, time.Hour))
	}
	require.NoError(t, store.Set(ctx, &model.CacheEntry{Key: "other", Domain: "legal", Response: "x"}, time.Hour))

	recent, err := store.RecentByDomain(ctx, "hr", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "k4", recent[0].Key)
	require.Equal(t, "k3", recent[1].Key)
	require.Equal(t, "k2", recent[2].Key)
}

func TestRedisStoreRecentSkipsDeletedEntries(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, 10)

	require.NoError(t, store.Set(ctx, &model.CacheEntry{Key: "k1", Domain: "hr", Response: "a"}, time.Hour))
	require.NoError(t, store.Set(ctx, &model.CacheEntry{Key: "k2", Domain: "hr", Response: "b"}, time.Hour))
	require.NoError(t, store.client.Del(ctx, entryKey("hr", "k2")).Err())

	recent, err := store.RecentByDomain(ctx, "hr", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "k1", recent[0].Key)
}

func TestRedisStoreDeleteDomain(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, 10)

	require.NoError(t, store.Set(ctx, &model.CacheEntry{Key: "k1", Domain: "hr", Response: "a"}, time.Hour))
	require.NoError(t, store.Set(ctx, &model.CacheEntry{Key: "k2", Domain: "hr", Response: "b"}, time.Hour))
	require.NoError(t, store.Set(ctx, &model.CacheEntry{Key: "k3", Domain: "legal", Response: "c"}, time.Hour))

	removed, err := store.DeleteDomain(ctx, "hr")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, ok, err := store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = store.Get(ctx, "legal", "k3")
	require.NoError(t, err)
	require.True(t, ok)

	recent, err := store.RecentByDomain(ctx, "hr", 10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestRedisStoreLeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, 10)

	ok, err := store.AcquireLease(ctx, "hr", "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.AcquireLease(ctx, "hr", "k1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = store.AcquireLease(ctx, "hr", "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.ReleaseLease(ctx, "hr", "k1"))
	ok, err = store.AcquireLease(ctx, "hr", "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisStorePing(t *testing.T) {
	store, mr := newRedisStore(t, 10)
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	require.Error(t, store.Ping(context.Background()))
}
