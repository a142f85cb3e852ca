package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/model"
)

func memEntry(key, domain string, ctime, expiry int64) *model.CacheEntry {
	return &model.CacheEntry{
		Key:      key,
		Domain:   domain,
		Response: "response " + key,
		Tier:     "cheap",
		Ctime:    ctime,
		Expiry:   expiry,
	}
}

func TestMemoryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 10, time.Hour)
	defer store.Close()

	entry := memEntry("k1", "hr", 100, 0)
	require.NoError(t, store.Set(ctx, entry, time.Hour))

	got, ok, err := store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "response k1", got.Response)

	_, ok, err = store.Get(ctx, "hr", "missing")
	require.NoError(t, err)
	require.False(t, ok)

	// Same key under another domain is a distinct slot.
	_, ok, err = store.Get(ctx, "legal", "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreGetEnforcesEntryExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 10, time.Hour)
	defer store.Close()

	base := time.Now()
	store.now = func() time.Time { return base }
	require.NoError(t, store.Set(ctx, memEntry("k1", "hr", base.Unix(), base.Unix()+10), time.Hour))

	_, ok, err := store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.True(t, ok)

	store.now = func() time.Time { return base.Add(11 * time.Second) }
	_, ok, err = store.Get(ctx, "hr", "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreRecentByDomain(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(100, 3, time.Hour)
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Set(ctx, memEntry(fmt.Sprintf("k%d", i), "hr", int64(i), 0), time.Hour))
	}
	require.NoError(t, store.Set(ctx, memEntry("other", "legal", 99, 0), time.Hour))

	recent, err := store.RecentByDomain(ctx, "hr", 10)
	require.NoError(t, err)
	// The ring keeps only the newest recentLimit keys, newest first.
	require.Len(t, recent, 3)
	require.Equal(t, "k4", recent[0].Key)
	require.Equal(t, "k3", recent[1].Key)
	require.Equal(t, "k2", recent[2].Key)

	recent, err = store.RecentByDomain(ctx, "hr", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestMemoryStoreRecentDedupesRewrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(100, 10, time.Hour)
	defer store.Close()

	require.NoError(t, store.Set(ctx, memEntry("k1", "hr", 1, 0), time.Hour))
	require.NoError(t, store.Set(ctx, memEntry("k2", "hr", 2, 0), time.Hour))
	require.NoError(t, store.Set(ctx, memEntry("k1", "hr", 3, 0), time.Hour))

	recent, err := store.RecentByDomain(ctx, "hr", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "k1", recent[0].Key)
	require.Equal(t, "k2", recent[1].Key)
}

func TestMemoryStoreDeleteDomain(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(100, 10, time.Hour)
	defer store.Close()

	require.NoError(t, store.Set(ctx, memEntry("k1", "hr", 1, 0), time.Hour))
	require.NoError(t, store.Set(ctx, memEntry("k2", "hr", 2, 0), time.Hour))
	require.NoError(t, store.Set(ctx, memEntry("k3", "legal", 3, 0), time.Hour))

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

func TestMemoryStoreLeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 10, time.Hour)
	defer store.Close()

	base := time.Now()
	store.now = func() time.Time { return base }

	ok, err := store.AcquireLease(ctx, "hr", "k1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.AcquireLease(ctx, "hr", "k1", 30*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	// A crashed holder's lease falls off at the ttl.
	store.now = func() time.Time { return base.Add(31 * time.Second) }
	ok, err = store.AcquireLease(ctx, "hr", "k1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.ReleaseLease(ctx, "hr", "k1"))
	ok, err = store.AcquireLease(ctx, "hr", "k1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}
