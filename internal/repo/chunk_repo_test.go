package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/timeutil"
	"github.com/ragline/ragline/internal/repo"
)

func TestChunkRepoBatchListDelete(t *testing.T) {
	conn := openTestDB(t)
	chunks := repo.NewChunkRepo(conn)
	ctx := context.Background()

	const docID = "test-doc-chunks-1"
	_, _ = chunks.DeleteByDocument(ctx, docID)
	t.Cleanup(func() { _, _ = chunks.DeleteByDocument(ctx, docID) })

	now := timeutil.NowUnix()
	batch := []*model.Chunk{
		{
			ID: docID + "-c0", DocumentID: docID, Domain: "hr",
			Content:   "Employees receive 15 PTO days per year.",
			Tags:      []string{"policy"},
			Source:    &model.SourceRef{URI: "handbook.md", Section: "Time Off"},
			Position:  0,
			Ctime:     now,
			Embedding: testVector(1),
		},
		{
			ID: docID + "-c1", DocumentID: docID, Domain: "hr",
			Content:   "Unused vacation carries over, capped at 5 days.",
			Position:  1,
			Ctime:     now,
			Embedding: testVector(0, 1),
		},
	}
	require.NoError(t, chunks.BatchCreate(ctx, batch))

	listed, err := chunks.ListByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, docID+"-c0", listed[0].ID)
	require.Equal(t, 0, listed[0].Position)
	require.Equal(t, []string{"policy"}, listed[0].Tags)
	require.NotNil(t, listed[0].Source)
	require.Equal(t, "Time Off", listed[0].Source.Section)
	require.Len(t, listed[0].Embedding, 1024)
	require.Equal(t, float32(1), listed[0].Embedding[0])

	// Re-inserting the same IDs upserts instead of duplicating.
	batch[0].Content = "Employees receive 20 PTO days per year."
	require.NoError(t, chunks.BatchCreate(ctx, batch[:1]))
	listed, err = chunks.ListByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "Employees receive 20 PTO days per year.", listed[0].Content)

	removed, err := chunks.DeleteByDocument(ctx, docID)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)
	listed, err = chunks.ListByDocument(ctx, docID)
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestChunkRepoSearchByEmbedding(t *testing.T) {
	conn := openTestDB(t)
	chunks := repo.NewChunkRepo(conn)
	ctx := context.Background()

	const docID = "test-doc-search-1"
	_, _ = chunks.DeleteByDocument(ctx, docID)
	t.Cleanup(func() { _, _ = chunks.DeleteByDocument(ctx, docID) })

	now := timeutil.NowUnix()
	require.NoError(t, chunks.BatchCreate(ctx, []*model.Chunk{
		{ID: docID + "-near", DocumentID: docID, Domain: "search-test",
			Content: "near", Ctime: now, Embedding: testVector(1)},
		{ID: docID + "-far", DocumentID: docID, Domain: "search-test",
			Content: "far", Ctime: now, Embedding: testVector(0, 1)},
	}))

	found, distances, err := chunks.SearchByEmbedding(ctx, testVector(1), "search-test", 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, docID+"-near", found[0].ID)
	require.InDelta(t, 0, distances[0], 1e-3)
	require.LessOrEqual(t, distances[0], distances[1])

	// Domain filtering excludes everything else.
	found, _, err = chunks.SearchByEmbedding(ctx, testVector(1), "no-such-domain", 2)
	require.NoError(t, err)
	require.Empty(t, found)
}
