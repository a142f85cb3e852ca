// Package metrics exposes Prometheus metrics for the query pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values recorded by the pipeline.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusRefused = "refused"

	CacheExact    = "exact"
	CacheSemantic = "semantic"
	CacheMiss     = "miss"
)

// Metrics holds all Prometheus metrics for the query pipeline.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	CacheLookupsTotal *prometheus.CounterVec

	TokenUsageTotal *prometheus.CounterVec
	CostTotal       *prometheus.CounterVec
	TierRoutedTotal *prometheus.CounterVec

	DegradedRetrievalsTotal prometheus.Counter
	GenerationRetriesTotal  prometheus.Counter
	RefusalsTotal           prometheus.Counter

	IndexDocuments prometheus.Gauge
	IndexChunks    prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on the given registerer so tests can use an
// isolated registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_requests_total",
			Help: "Total number of query requests",
		},
		[]string{"domain", "status"},
	)

	m.StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_request_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0},
		},
		[]string{"stage"},
	)

	m.CacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_cache_lookups_total",
			Help: "Cache lookups by outcome",
		},
		[]string{"result"},
	)

	m.TokenUsageTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_token_usage_total",
			Help: "Total token usage by tier and direction",
		},
		[]string{"tier", "type"},
	)

	m.CostTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_cost_dollars_total",
			Help: "Estimated generation cost in USD",
		},
		[]string{"tier"},
	)

	m.TierRoutedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_tier_routed_total",
			Help: "Routing decisions by tier",
		},
		[]string{"tier"},
	)

	m.DegradedRetrievalsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_degraded_retrievals_total",
			Help: "Retrievals served from a single source",
		},
	)

	m.GenerationRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_generation_retries_total",
			Help: "Generation attempts beyond the first",
		},
	)

	m.RefusalsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_refusals_total",
			Help: "Responses replaced by the safety refusal",
		},
	)

	m.IndexDocuments = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rag_index_documents",
			Help: "Documents currently indexed",
		},
	)

	m.IndexChunks = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rag_index_chunks",
			Help: "Chunks currently indexed",
		},
	)

	return m
}

// RecordRequest records one finished request with its outcome.
func (m *Metrics) RecordRequest(domain, status string) {
	m.RequestsTotal.WithLabelValues(domain, status).Inc()
}

// ObserveStage records how long one pipeline stage took.
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache outcome.
func (m *Metrics) RecordCacheLookup(result string) {
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordGeneration records token usage and approximate cost for one
// generation call.
func (m *Metrics) RecordGeneration(tier string, inputTokens, outputTokens int64, cost float64) {
	m.TokenUsageTotal.WithLabelValues(tier, "input").Add(float64(inputTokens))
	m.TokenUsageTotal.WithLabelValues(tier, "output").Add(float64(outputTokens))
	m.CostTotal.WithLabelValues(tier).Add(cost)
}

// RecordRoute records a routing decision.
func (m *Metrics) RecordRoute(tier string) {
	m.TierRoutedTotal.WithLabelValues(tier).Inc()
}

// UpdateIndexStats refreshes the index size gauges.
func (m *Metrics) UpdateIndexStats(documents, chunks int) {
	m.IndexDocuments.Set(float64(documents))
	m.IndexChunks.Set(float64(chunks))
}
