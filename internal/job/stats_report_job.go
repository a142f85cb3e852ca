package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/service"
)

// StatsReportJob logs a periodic snapshot of corpus size and query traffic
// so operators can watch trends without scraping metrics.
type StatsReportJob struct {
	ingest  *service.IngestService
	queries *service.StatsRecorder
}

func NewStatsReportJob(ingest *service.IngestService, queries *service.StatsRecorder) *StatsReportJob {
	return &StatsReportJob{ingest: ingest, queries: queries}
}

func (j *StatsReportJob) Name() string {
	return "stats_report"
}

func (j *StatsReportJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	if j.ingest != nil {
		stats := j.ingest.Stats(ctx)
		logger.Info("corpus stats",
			zap.Int("documents", stats.Documents),
			zap.Int("chunks", stats.Chunks),
			zap.Int("dense_entries", stats.DenseEntries),
			zap.Int("lexical_terms", stats.LexicalTerms))
	}
	if j.queries != nil {
		stats := j.queries.Snapshot()
		logger.Info("query stats",
			zap.Int64("requests", stats.Requests),
			zap.Int64("cache_hits", stats.CacheHits),
			zap.Int64("refusals", stats.Refusals),
			zap.Int64("failures", stats.Failures),
			zap.Int64("degraded", stats.Degraded),
			zap.Any("tiers", stats.Tiers))
	}
	return nil
}
