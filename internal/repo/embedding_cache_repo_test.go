package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/repo"
)

func TestEmbeddingCacheRepoRoundtrip(t *testing.T) {
	conn := openTestDB(t)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)
	ctx := context.Background()
	now := time.Now().Unix()

	item := &model.EmbeddingCache{
		ModelName:   "test-embed",
		TaskType:    "query",
		ContentHash: "hash-roundtrip-1",
		Embedding:   testVector(0.5, 0.25),
		Ctime:       now,
		Expiry:      0,
	}
	require.NoError(t, cacheRepo.Save(ctx, item))

	values, ok, err := cacheRepo.Get(ctx, "test-embed", "query", "hash-roundtrip-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, values, 1024)
	require.Equal(t, float32(0.5), values[0])
	require.Equal(t, float32(0.25), values[1])

	// Saving the same key replaces the stored vector.
	item.Embedding = testVector(0.75)
	require.NoError(t, cacheRepo.Save(ctx, item))
	values, ok, err = cacheRepo.Get(ctx, "test-embed", "query", "hash-roundtrip-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float32(0.75), values[0])

	_, ok, err = cacheRepo.Get(ctx, "other-model", "query", "hash-roundtrip-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmbeddingCacheRepoExpiry(t *testing.T) {
	conn := openTestDB(t)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, cacheRepo.Save(ctx, &model.EmbeddingCache{
		ModelName:   "test-embed",
		TaskType:    "query",
		ContentHash: "hash-expired-1",
		Embedding:   testVector(1),
		Ctime:       now - 100,
		Expiry:      now - 10,
	}))

	// Expired rows read as absent even before the sweep runs.
	_, ok, err := cacheRepo.Get(ctx, "test-embed", "query", "hash-expired-1")
	require.NoError(t, err)
	require.False(t, ok)

	removed, err := cacheRepo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, int64(1))

	// Rows without an expiry are never swept.
	require.NoError(t, cacheRepo.Save(ctx, &model.EmbeddingCache{
		ModelName:   "test-embed",
		TaskType:    "query",
		ContentHash: "hash-persistent-1",
		Embedding:   testVector(1),
		Ctime:       now,
	}))
	_, err = cacheRepo.DeleteExpired(ctx, now+1000000)
	require.NoError(t, err)
	_, ok, err = cacheRepo.Get(ctx, "test-embed", "query", "hash-persistent-1")
	require.NoError(t, err)
	require.True(t, ok)
}
