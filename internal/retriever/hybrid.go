package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/index"
	"github.com/ragline/ragline/internal/model"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
)

// candidateFactor is how many candidates each side fetches per requested
// result before fusion.
const candidateFactor = 2

var errNoEmbedding = errors.New("no query embedding")

type Config struct {
	TopK        int
	Alpha       float64
	DomainAlpha map[string]float64
}

type ScoredChunk struct {
	Chunk   *model.Chunk
	Score   float64
	Dense   float64
	Lexical float64
}

type Result struct {
	Chunks   []ScoredChunk
	Degraded bool
}

// HybridRetriever fuses dense nearest-neighbor results with BM25 lexical
// results into one ranked list.
type HybridRetriever struct {
	dense   index.DenseIndex
	lexical *index.LexicalIndex
	cfg     Config
}

func NewHybridRetriever(dense index.DenseIndex, lexical *index.LexicalIndex, cfg Config) *HybridRetriever {
	return &HybridRetriever{dense: dense, lexical: lexical, cfg: cfg}
}

func (h *HybridRetriever) TopK() int {
	return h.cfg.TopK
}

// AlphaFor resolves the dense weight for a domain, falling back to the
// global default.
func (h *HybridRetriever) AlphaFor(domain string) float64 {
	if alpha, ok := h.cfg.DomainAlpha[domain]; ok {
		return alpha
	}
	return h.cfg.Alpha
}

// Retrieve runs both searches concurrently and blends the candidates with
// alpha x dense + (1-alpha) x lexical. A candidate absent from one side
// keeps a zero for that component but still competes. One failed side
// degrades the result to single-source ranking; two failed sides fail the
// retrieval.
func (h *HybridRetriever) Retrieve(ctx context.Context, queryText string, queryEmbedding []float32, domain string, topK int, alpha float64) (*Result, error) {
	if topK <= 0 {
		topK = h.cfg.TopK
	}
	candidates := topK * candidateFactor

	var (
		wg        sync.WaitGroup
		denseHits []index.DenseHit
		denseErr  error
		lexHits   []index.LexicalHit
		lexErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if h.dense == nil {
			denseErr = index.ErrNotReady
			return
		}
		if len(queryEmbedding) == 0 {
			denseErr = errNoEmbedding
			return
		}
		denseHits, denseErr = h.dense.Search(ctx, queryEmbedding, domain, candidates)
	}()
	go func() {
		defer wg.Done()
		if h.lexical == nil {
			lexErr = index.ErrNotReady
			return
		}
		lexHits, lexErr = h.lexical.Search(queryText, domain, candidates)
	}()
	wg.Wait()

	if denseErr != nil && lexErr != nil {
		return nil, fmt.Errorf("%w: dense: %v, lexical: %v", appErr.ErrRetrievalUnavailable, denseErr, lexErr)
	}
	degraded := false
	switch {
	case denseErr != nil:
		logutil.GetLogger(ctx).Warn("dense search unavailable, lexical only", zap.Error(denseErr))
		alpha = 0
		degraded = true
	case lexErr != nil:
		logutil.GetLogger(ctx).Warn("lexical search unavailable, dense only", zap.Error(lexErr))
		alpha = 1
		degraded = true
	}

	merged := make(map[string]*ScoredChunk)
	for _, hit := range denseHits {
		merged[hit.Chunk.ID] = &ScoredChunk{
			Chunk: hit.Chunk,
			Dense: 1 / (1 + hit.Distance),
		}
	}
	var maxLex float64
	for _, hit := range lexHits {
		if hit.Score > maxLex {
			maxLex = hit.Score
		}
	}
	for _, hit := range lexHits {
		norm := 0.0
		if maxLex > 0 {
			norm = hit.Score / maxLex
		}
		if sc, ok := merged[hit.Chunk.ID]; ok {
			sc.Lexical = norm
		} else {
			merged[hit.Chunk.ID] = &ScoredChunk{Chunk: hit.Chunk, Lexical: norm}
		}
	}

	ranked := make([]ScoredChunk, 0, len(merged))
	for _, sc := range merged {
		sc.Score = alpha*sc.Dense + (1-alpha)*sc.Lexical
		ranked = append(ranked, *sc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Chunk.Ctime != ranked[j].Chunk.Ctime {
			return ranked[i].Chunk.Ctime > ranked[j].Chunk.Ctime
		}
		return ranked[i].Chunk.ID < ranked[j].Chunk.ID
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return &Result{Chunks: ranked, Degraded: degraded}, nil
}
