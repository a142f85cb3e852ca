package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/schedule"
	"github.com/ragline/ragline/internal/service"
)

var (
	_ schedule.Job = (*StatsReportJob)(nil)
	_ schedule.Job = (*EmbeddingSweepJob)(nil)
)

func TestStatsReportJobRun(t *testing.T) {
	j := NewStatsReportJob(nil, service.NewStatsRecorder())
	require.Equal(t, "stats_report", j.Name())
	require.NoError(t, j.Run(context.Background()))
}

func TestEmbeddingSweepJobWithoutRepo(t *testing.T) {
	j := NewEmbeddingSweepJob(nil)
	require.Equal(t, "embedding_cache_sweep", j.Name())
	require.NoError(t, j.Run(context.Background()))
}
