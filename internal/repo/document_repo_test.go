package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/model"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/pkg/timeutil"
	"github.com/ragline/ragline/internal/repo"
)

func TestDocumentRepoCRUD(t *testing.T) {
	conn := openTestDB(t)
	docs := repo.NewDocumentRepo(conn)
	ctx := context.Background()

	const docID = "test-doc-crud-1"
	_ = docs.Delete(ctx, docID)
	t.Cleanup(func() { _ = docs.Delete(ctx, docID) })

	before, err := docs.Count(ctx)
	require.NoError(t, err)

	doc := &model.Document{
		ID:     docID,
		Domain: "hr",
		Title:  "Employee Handbook",
		Tags:   []string{"policy", "pto"},
		Origin: model.OriginUpload,
		Ctime:  timeutil.NowUnix(),
	}
	require.NoError(t, docs.Create(ctx, doc))

	after, err := docs.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	require.ErrorIs(t, docs.Create(ctx, doc), appErr.ErrConflict)

	fetched, err := docs.GetByID(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, "Employee Handbook", fetched.Title)
	require.Equal(t, "hr", fetched.Domain)
	require.Equal(t, []string{"policy", "pto"}, fetched.Tags)
	require.Equal(t, model.OriginUpload, fetched.Origin)

	all, err := docs.ListAll(ctx)
	require.NoError(t, err)
	found := false
	for _, d := range all {
		if d.ID == docID {
			found = true
		}
	}
	require.True(t, found)

	require.NoError(t, docs.Delete(ctx, docID))
	_, err = docs.GetByID(ctx, docID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.ErrorIs(t, docs.Delete(ctx, docID), appErr.ErrNotFound)
}
