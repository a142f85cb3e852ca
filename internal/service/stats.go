package service

import "sync"

// StatsRecorder keeps coarse in-process counters for the query pipeline.
// Prometheus carries the full histograms; these exist for the stats
// endpoint and the hourly report log.
type StatsRecorder struct {
	mu        sync.Mutex
	requests  int64
	cacheHits int64
	refusals  int64
	failures  int64
	degraded  int64
	tiers     map[string]int64
}

func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{tiers: make(map[string]int64)}
}

func (r *StatsRecorder) recordServed(tier string, cached, degraded, refused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	if cached {
		r.cacheHits++
	}
	if degraded {
		r.degraded++
	}
	if refused {
		r.refusals++
	}
	if tier != "" {
		r.tiers[tier]++
	}
}

func (r *StatsRecorder) recordFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	r.failures++
}

type QueryStats struct {
	Requests  int64            `json:"requests"`
	CacheHits int64            `json:"cache_hits"`
	Refusals  int64            `json:"refusals"`
	Failures  int64            `json:"failures"`
	Degraded  int64            `json:"degraded"`
	Tiers     map[string]int64 `json:"tiers"`
}

func (r *StatsRecorder) Snapshot() QueryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	tiers := make(map[string]int64, len(r.tiers))
	for tier, count := range r.tiers {
		tiers[tier] = count
	}
	return QueryStats{
		Requests:  r.requests,
		CacheHits: r.cacheHits,
		Refusals:  r.refusals,
		Failures:  r.failures,
		Degraded:  r.degraded,
		Tiers:     tiers,
	}
}
