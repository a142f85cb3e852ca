package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/guard"
	"github.com/ragline/ragline/internal/handler"
	"github.com/ragline/ragline/internal/index"
	"github.com/ragline/ragline/internal/ingest"
	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/middleware"
	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/apikey"
	"github.com/ragline/ragline/internal/pkg/vecmath"
	"github.com/ragline/ragline/internal/retriever"
	approuter "github.com/ragline/ragline/internal/router"
	"github.com/ragline/ragline/internal/service"
)

type stubGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	count   int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, ai.TokenUsage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.count
	g.count++
	if g.err != nil {
		return "", ai.TokenUsage{}, g.err
	}
	if len(g.replies) == 0 {
		return "stub answer", ai.TokenUsage{InputTokens: 100, OutputTokens: 50}, nil
	}
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	return g.replies[idx], ai.TokenUsage{InputTokens: 100, OutputTokens: 50}, nil
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
}

func (e *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.fallback, nil
}

func (e *stubEmbedder) ModelName() string { return "stub-embed" }

var testBudget = config.BudgetConfig{
	EmbedTimeoutSeconds:    5,
	CacheTimeoutSeconds:    5,
	RetrieveTimeoutSeconds: 5,
	GenerateTimeoutSeconds: 5,
	SafetyTimeoutSeconds:   5,
	MarginSeconds:          5,
}

type serverOptions struct {
	jwtSecret string
	apiKeys   []string
	rateLimit time.Duration
	readyErr  error
}

type testServer struct {
	handler http.Handler
	cheap   *stubGenerator
	capable *stubGenerator
	embed   *stubEmbedder
	ingest  *service.IngestService
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := index.NewCatalog()
	lexical := index.NewLexicalIndex()
	dense := index.NewMemoryDenseIndex(vecmath.CosineDistance)
	store := cache.NewMemoryStore(100, 100, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	semCache := cache.NewSemanticCache(store, cache.Config{})

	hybrid := retriever.NewHybridRetriever(dense, lexical, retriever.Config{TopK: 3, Alpha: 0.7})
	complexity, err := approuter.NewRouter(nil)
	require.NoError(t, err)
	checker, err := guard.NewChecker("blocklist", map[string]interface{}{"terms": []string{"forbidden"}})
	require.NoError(t, err)

	cheap := &stubGenerator{}
	capable := &stubGenerator{}
	embed := &stubEmbedder{fallback: []float32{1, 0, 0}}
	manager := ai.NewManager(cheap, capable, embed, ai.ManagerConfig{
		Prices: map[string]ai.TierPrice{
			model.TierCheap:   {InputPer1K: 0.1, OutputPer1K: 0.4},
			model.TierCapable: {InputPer1K: 2.5, OutputPer1K: 10},
		},
	})

	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	ingestService := service.NewIngestService(nil, nil, manager, ingest.NewChunker(config.IngestConfig{}),
		catalog, dense, lexical, semCache, nil, m)
	stats := service.NewStatsRecorder()
	queryService := service.NewQueryService(manager, hybrid, semCache, complexity, checker,
		catalog, m, stats, testBudget, 1)

	hashedKeys := make([]string, 0, len(opts.apiKeys))
	for _, key := range opts.apiKeys {
		hash, err := apikey.Hash(key)
		require.NoError(t, err)
		hashedKeys = append(hashedKeys, hash)
	}

	checks := []handler.ReadyCheck{{Name: "cache", Ping: store.Ping}}
	if opts.readyErr != nil {
		checks = append(checks, handler.ReadyCheck{
			Name: "backend",
			Ping: func(ctx context.Context) error { return opts.readyErr },
		})
	}

	deps := handler.RouterDeps{
		Query:          handler.NewQueryHandler(queryService),
		Documents:      handler.NewDocumentHandler(ingestService),
		Cache:          handler.NewCacheHandler(semCache),
		Stats:          handler.NewStatsHandler(ingestService, stats),
		Health:         handler.NewHealthHandler(checks...),
		JWTSecret:      []byte(opts.jwtSecret),
		HashedAPIKeys:  hashedKeys,
		QueryRateLimit: opts.rateLimit,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)

	return &testServer{
		handler: engine,
		cheap:   cheap,
		capable: capable,
		embed:   embed,
		ingest:  ingestService,
	}
}

func seedCorpus(t *testing.T, ts *testServer) {
	t.Helper()
	_, err := ts.ingest.AddDocument(context.Background(), service.AddDocumentInput{
		Title:  "Employee Handbook",
		Domain: "hr",
		Chunks: []service.ChunkInput{
			{Content: "Employees receive 15 PTO days per year, accruing monthly.",
				Embedding: []float32{1, 0, 0}, Section: "Time Off"},
		},
	})
	require.NoError(t, err)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// do sends one request; a []byte or string body goes through raw so tests
// can send malformed payloads.
func do(t *testing.T, h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, out interface{}) envelope {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

type answerPayload struct {
	Text      string `json:"text"`
	Cached    bool   `json:"cached"`
	Tier      string `json:"tier"`
	Refused   bool   `json:"refused"`
	Citations []struct {
		ChunkID    string  `json:"chunk_id"`
		DocumentID string  `json:"document_id"`
		Title      string  `json:"title"`
		Score      float64 `json:"score"`
	} `json:"citations"`
}
