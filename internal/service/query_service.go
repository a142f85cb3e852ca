package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/guard"
	"github.com/ragline/ragline/internal/index"
	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/model"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/prompt"
	"github.com/ragline/ragline/internal/retriever"
	"github.com/ragline/ragline/internal/router"
)

const (
	stageEmbed      = "embed"
	stageCacheCheck = "cache_check"
	stageRetrieve   = "retrieve"
	stageGenerate   = "generate"
	stageSafety     = "safety"
	stageCacheWrite = "cache_write"
	stageTotal      = "total"
)

const generateBackoffBase = 500 * time.Millisecond

// QueryService drives one query through the pipeline: cache check,
// retrieval, routing, generation, safety check, cache write. Each step runs
// under its own budget and the whole request under an overall deadline.
type QueryService struct {
	manager    *ai.Manager
	retriever  *retriever.HybridRetriever
	cache      *cache.SemanticCache
	router     *router.Router
	checker    guard.IChecker
	catalog    *index.Catalog
	metrics    *metrics.Metrics
	stats      *StatsRecorder
	budget     config.BudgetConfig
	maxRetries int
}

func NewQueryService(manager *ai.Manager, rt *retriever.HybridRetriever, sc *cache.SemanticCache,
	r *router.Router, checker guard.IChecker, catalog *index.Catalog, m *metrics.Metrics,
	stats *StatsRecorder, budget config.BudgetConfig, maxRetries int) *QueryService {

	if maxRetries < 0 {
		maxRetries = 0
	}
	if stats == nil {
		stats = NewStatsRecorder()
	}
	return &QueryService{
		manager:    manager,
		retriever:  rt,
		cache:      sc,
		router:     r,
		checker:    checker,
		catalog:    catalog,
		metrics:    m,
		stats:      stats,
		budget:     budget,
		maxRetries: maxRetries,
	}
}

// Query serves one question end to end. Cache hits return immediately;
// misses run retrieval and generation, then write back best-effort.
func (s *QueryService) Query(ctx context.Context, q *model.Query) (*model.Answer, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.budget.Overall(s.maxRetries))
	defer cancel()

	key := cache.CacheKey(q.Text, q.Domain)
	q.CacheKey = key
	logger := logutil.GetLogger(ctx).With(zap.String("domain", q.Domain))

	q.Embedding = s.embedQuery(ctx, logger, q.Text)

	if hit := s.cacheLookup(ctx, logger, key, q.Domain, q.Embedding); hit != nil {
		answer := s.answerFromHit(hit, start)
		s.finish(logger, q, answer, cacheResult(hit), 0)
		return answer, nil
	}

	leased := s.tryLease(ctx, logger, q.Domain, key)
	if !leased {
		if hit := s.awaitLeaseholder(ctx, logger, q.Domain, key); hit != nil {
			answer := s.answerFromHit(hit, start)
			s.finish(logger, q, answer, cacheResult(hit), 0)
			return answer, nil
		}
	} else {
		defer s.releaseLease(q.Domain, key)
	}
	s.metrics.RecordCacheLookup(metrics.CacheMiss)

	res, err := s.retrieve(ctx, q)
	if err != nil {
		return nil, s.fail(logger, q, stageRetrieve, start, err)
	}

	decision := s.router.Route(q.Text, q.Domain)
	q.Tier = decision.Tier
	s.metrics.RecordRoute(decision.Tier)
	logger.Debug("routed query",
		zap.String("tier", decision.Tier),
		zap.Int("word_count", decision.WordCount),
		zap.Int("score", decision.Score))

	p := prompt.Assemble(q.Domain, q.Text, scoredContents(res.Chunks))

	text, usage, retries, err := s.generate(ctx, decision.Tier, p.Render())
	cost := s.manager.Cost(decision.Tier, usage)
	s.metrics.RecordGeneration(decision.Tier, usage.InputTokens, usage.OutputTokens, cost)
	if err != nil {
		return nil, s.fail(logger, q, stageGenerate, start, err)
	}

	verdict, err := s.checkSafety(ctx, text)
	if err != nil {
		return nil, s.fail(logger, q, stageSafety, start, err)
	}
	if !verdict.Safe {
		answer := &model.Answer{
			Text:         guard.RefusalMessage,
			Tier:         decision.Tier,
			Cost:         cost,
			Degraded:     res.Degraded,
			Refused:      true,
			ElapsedMs:    time.Since(start).Milliseconds(),
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		}
		s.metrics.RefusalsTotal.Inc()
		logger.Warn("response refused by safety check", zap.String("reason", verdict.Reason))
		s.finish(logger, q, answer, metrics.CacheMiss, retries)
		return answer, nil
	}

	citations := s.citationsFrom(res.Chunks)
	s.writeCache(ctx, logger, q, verdict.Text, citations, decision.Tier)

	answer := &model.Answer{
		Text:         verdict.Text,
		Citations:    citations,
		Tier:         decision.Tier,
		Cost:         cost,
		Degraded:     res.Degraded,
		ElapsedMs:    time.Since(start).Milliseconds(),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}
	s.finish(logger, q, answer, metrics.CacheMiss, retries)
	return answer, nil
}

// embedQuery is best-effort: without an embedding the request degrades to
// exact-only cache matching and lexical-only retrieval instead of failing.
func (s *QueryService) embedQuery(ctx context.Context, logger *zap.Logger, text string) []float32 {
	defer s.observe(stageEmbed, time.Now())
	stepCtx, cancel := context.WithTimeout(ctx, s.budget.Embed())
	defer cancel()
	embedding, err := s.manager.Embed(stepCtx, text, ai.TaskTypeQuery)
	if err != nil {
		logger.Warn("embed query failed", zap.Error(err))
		return nil
	}
	return embedding
}

func (s *QueryService) cacheLookup(ctx context.Context, logger *zap.Logger, key, domain string, embedding []float32) *cache.Hit {
	defer s.observe(stageCacheCheck, time.Now())
	stepCtx, cancel := context.WithTimeout(ctx, s.budget.Cache())
	defer cancel()
	hit, err := s.cache.Lookup(stepCtx, key, domain, embedding)
	if err != nil {
		logger.Warn("cache lookup failed", zap.Error(err))
		return nil
	}
	return hit
}

func (s *QueryService) tryLease(ctx context.Context, logger *zap.Logger, domain, key string) bool {
	ok, err := s.cache.TryLease(ctx, domain, key)
	if err != nil {
		logger.Warn("cache lease failed", zap.Error(err))
		return false
	}
	return ok
}

// awaitLeaseholder waits briefly for another request computing the same key
// to publish its entry. A timeout falls through to computing locally.
func (s *QueryService) awaitLeaseholder(ctx context.Context, logger *zap.Logger, domain, key string) *cache.Hit {
	hit, err := s.cache.AwaitLeaseholder(ctx, domain, key)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("await leaseholder failed", zap.Error(err))
		}
		return nil
	}
	return hit
}

func (s *QueryService) releaseLease(domain, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.ReleaseLease(ctx, domain, key); err != nil {
		logutil.GetLogger(ctx).Warn("release cache lease failed", zap.Error(err))
	}
}

func (s *QueryService) retrieve(ctx context.Context, q *model.Query) (*retriever.Result, error) {
	defer s.observe(stageRetrieve, time.Now())
	stepCtx, cancel := context.WithTimeout(ctx, s.budget.Retrieve())
	defer cancel()
	res, err := s.retriever.Retrieve(stepCtx, q.Text, q.Embedding, q.Domain,
		s.retriever.TopK(), s.retriever.AlphaFor(q.Domain))
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		s.metrics.DegradedRetrievalsTotal.Inc()
	}
	return res, nil
}

// generate runs up to maxRetries+1 attempts with exponential backoff,
// retrying only transient failures. Token usage accumulates across attempts
// since failed calls still bill.
func (s *QueryService) generate(ctx context.Context, tier, rendered string) (string, ai.TokenUsage, int, error) {
	defer s.observe(stageGenerate, time.Now())
	var total ai.TokenUsage
	var lastErr error
	retries := 0
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			retries++
			s.metrics.GenerationRetriesTotal.Inc()
			backoff := generateBackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", total, retries, fmt.Errorf("%w: %v", appErr.ErrDeadlineExceeded, ctx.Err())
			case <-time.After(backoff):
			}
		}
		stepCtx, cancel := context.WithTimeout(ctx, s.budget.Generate())
		text, usage, err := s.manager.Generate(stepCtx, tier, rendered)
		cancel()
		total = total.Add(usage)
		if err == nil {
			return text, total, retries, nil
		}
		lastErr = err
		if !ai.IsTransient(err) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil {
		return "", total, retries, fmt.Errorf("%w: %v", appErr.ErrDeadlineExceeded, lastErr)
	}
	return "", total, retries, fmt.Errorf("%w: %v", appErr.ErrGenerationFailed, lastErr)
}

func (s *QueryService) checkSafety(ctx context.Context, text string) (guard.Verdict, error) {
	defer s.observe(stageSafety, time.Now())
	stepCtx, cancel := context.WithTimeout(ctx, s.budget.Safety())
	defer cancel()
	return s.checker.Check(stepCtx, text)
}

// writeCache is best-effort and skipped entirely once the request context
// is cancelled, so an abandoned caller never publishes a half-done entry.
func (s *QueryService) writeCache(ctx context.Context, logger *zap.Logger, q *model.Query,
	text string, citations []model.Citation, tier string) {

	if ctx.Err() != nil {
		logger.Debug("skip cache write, request context done")
		return
	}
	defer s.observe(stageCacheWrite, time.Now())
	stepCtx, cancel := context.WithTimeout(ctx, s.budget.Cache())
	defer cancel()
	if err := s.cache.Store(stepCtx, q.CacheKey, q.Domain, q.Embedding, text, citations, tier); err != nil {
		logger.Warn("cache write failed", zap.Error(err))
	}
}

func (s *QueryService) answerFromHit(hit *cache.Hit, start time.Time) *model.Answer {
	return &model.Answer{
		Text:      hit.Entry.Response,
		Citations: hit.Entry.Citations,
		Cached:    true,
		Tier:      hit.Entry.Tier,
		ElapsedMs: time.Since(start).Milliseconds(),
	}
}

func (s *QueryService) citationsFrom(chunks []retriever.ScoredChunk) []model.Citation {
	citations := make([]model.Citation, 0, len(chunks))
	for _, sc := range chunks {
		title := ""
		if doc, ok := s.catalog.Document(sc.Chunk.DocumentID); ok {
			title = doc.Title
		}
		citations = append(citations, model.Citation{
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Title:      title,
			Score:      sc.Score,
		})
	}
	return citations
}

func scoredContents(chunks []retriever.ScoredChunk) []*model.Chunk {
	out := make([]*model.Chunk, 0, len(chunks))
	for _, sc := range chunks {
		out = append(out, sc.Chunk)
	}
	return out
}

func cacheResult(hit *cache.Hit) string {
	if hit.Exact {
		return metrics.CacheExact
	}
	return metrics.CacheSemantic
}

func (s *QueryService) observe(stage string, start time.Time) {
	s.metrics.ObserveStage(stage, time.Since(start))
}

func (s *QueryService) fail(logger *zap.Logger, q *model.Query, stage string, start time.Time, err error) error {
	s.observe(stageTotal, start)
	s.metrics.RecordRequest(q.Domain, metrics.StatusFailed)
	s.stats.recordFailed()
	logger.Error("query failed",
		zap.String("stage", stage),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		zap.Error(err))
	return err
}

func (s *QueryService) finish(logger *zap.Logger, q *model.Query, answer *model.Answer, cacheOutcome string, retries int) {
	s.metrics.ObserveStage(stageTotal, time.Duration(answer.ElapsedMs)*time.Millisecond)
	status := metrics.StatusOK
	if answer.Refused {
		status = metrics.StatusRefused
	}
	if answer.Cached {
		s.metrics.RecordCacheLookup(cacheOutcome)
	}
	s.metrics.RecordRequest(q.Domain, status)
	s.stats.recordServed(answer.Tier, answer.Cached, answer.Degraded, answer.Refused)
	logger.Info("query served",
		zap.String("tier", answer.Tier),
		zap.String("cache", cacheOutcome),
		zap.Bool("cached", answer.Cached),
		zap.Bool("degraded", answer.Degraded),
		zap.Bool("refused", answer.Refused),
		zap.Int("retries", retries),
		zap.Float64("cost", answer.Cost),
		zap.Int64("elapsed_ms", answer.ElapsedMs))
}
