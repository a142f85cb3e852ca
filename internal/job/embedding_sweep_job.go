package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/pkg/timeutil"
	"github.com/ragline/ragline/internal/repo"
)

// EmbeddingSweepJob clears expired rows from the persistent embedding
// cache. Reads already skip expired rows; this just reclaims the space.
type EmbeddingSweepJob struct {
	repo *repo.EmbeddingCacheRepo
}

func NewEmbeddingSweepJob(repo *repo.EmbeddingCacheRepo) *EmbeddingSweepJob {
	return &EmbeddingSweepJob{repo: repo}
}

func (j *EmbeddingSweepJob) Name() string {
	return "embedding_cache_sweep"
}

func (j *EmbeddingSweepJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	removed, err := j.repo.DeleteExpired(ctx, timeutil.NowUnix())
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("expired embeddings removed", zap.Int64("removed", removed))
	}
	return nil
}
