package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/embedcache"
	"github.com/ragline/ragline/internal/filestore"
	"github.com/ragline/ragline/internal/guard"
	"github.com/ragline/ragline/internal/handler"
	"github.com/ragline/ragline/internal/index"
	"github.com/ragline/ragline/internal/ingest"
	"github.com/ragline/ragline/internal/job"
	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/middleware"
	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/apikey"
	"github.com/ragline/ragline/internal/pkg/jwt"
	"github.com/ragline/ragline/internal/pkg/vecmath"
	"github.com/ragline/ragline/internal/repo"
	"github.com/ragline/ragline/internal/retriever"
	approuter "github.com/ragline/ragline/internal/router"
	"github.com/ragline/ragline/internal/schedule"
	"github.com/ragline/ragline/internal/service"
)

// reembedPause spaces out gateway calls during a full re-embed so the run
// stays under provider rate limits.
const reembedPause = 200 * time.Millisecond

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragline",
		Short: "ragline RAG query server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			if database != nil {
				defer database.Close()
			}
			return runServer(cfg, database)
		},
	}

	var tokenService, tokenScope string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "mint a service token for the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			if tokenScope != jwt.ScopeIngest && tokenScope != jwt.ScopeQuery {
				return fmt.Errorf("scope must be %s or %s", jwt.ScopeIngest, jwt.ScopeQuery)
			}
			ttl := time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
			token, err := jwt.GenerateToken(tokenService, tokenScope, []byte(cfg.Auth.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenService, "service", "ingest-pipeline", "service name embedded in the token")
	tokenCmd.Flags().StringVar(&tokenScope, "scope", jwt.ScopeIngest, "token scope (ingest or query)")

	hashkeyCmd := &cobra.Command{
		Use:   "hashkey <key>",
		Short: "print the bcrypt hash of an api key for auth.api_keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := apikey.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}

	reembedCmd := &cobra.Command{
		Use:   "reembed",
		Short: "recompute every stored chunk embedding with the configured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			if !cfg.Database.Enabled() {
				return fmt.Errorf("reembed requires a configured database")
			}
			database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			return runReembed(cmd.Context(), cfg, database)
		},
	}

	rootCmd.AddCommand(runCmd, tokenCmd, hashkeyCmd, reembedCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(path)
}

func initLogger(cfg *config.Config) {
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
}

// openDatabase is a no-op when no database is configured; the corpus then
// lives in memory only.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if !cfg.Database.Enabled() {
		return nil, nil
	}
	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return database, nil
}

func runServer(cfg *config.Config, database *sql.DB) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.Bool("database", database != nil),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("file_store", cfg.FileStore.Type),
	)

	m := metrics.NewMetrics()

	var (
		docRepo        *repo.DocumentRepo
		chunkRepo      *repo.ChunkRepo
		embedCacheRepo *repo.EmbeddingCacheRepo
	)
	if database != nil {
		docRepo = repo.NewDocumentRepo(database)
		chunkRepo = repo.NewChunkRepo(database)
		embedCacheRepo = repo.NewEmbeddingCacheRepo(database)
	}

	store, err := buildCacheStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	semCache := cache.NewSemanticCache(store, cache.Config{
		ResponseTTL:         cfg.Cache.ResponseTTL(),
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		ScanLimit:           cfg.Cache.ScanLimit,
		LeaseTTL:            time.Duration(cfg.Cache.LeaseTTLSeconds) * time.Second,
		LeaseWait:           time.Duration(cfg.Cache.LeaseWaitMs) * time.Millisecond,
	})

	catalog := index.NewCatalog()
	lexical := index.NewLexicalIndex()
	var dense index.DenseIndex
	if chunkRepo != nil {
		dense = index.NewPGDenseIndex(chunkRepo)
	} else {
		dense = index.NewMemoryDenseIndex(vecmath.CosineDistance)
	}

	hybrid := retriever.NewHybridRetriever(dense, lexical, retriever.Config{
		TopK:        cfg.Retrieval.TopK,
		Alpha:       cfg.Retrieval.Alpha,
		DomainAlpha: cfg.Retrieval.DomainAlpha,
	})

	policy := approuter.DefaultPolicy()
	if cfg.Routing.PolicyFile != "" {
		policy, err = approuter.LoadPolicyFile(cfg.Routing.PolicyFile)
		if err != nil {
			return fmt.Errorf("load routing policy: %w", err)
		}
	}
	complexity, err := approuter.NewRouter(policy)
	if err != nil {
		return fmt.Errorf("init complexity router: %w", err)
	}

	checker, err := guard.NewChecker(cfg.Guard.Provider, cfg.Guard.Args)
	if err != nil {
		return fmt.Errorf("init guard checker: %w", err)
	}

	manager, err := buildManager(cfg, embedCacheRepo)
	if err != nil {
		return err
	}

	var archive filestore.Store
	if cfg.FileStore.Enabled() {
		archive, err = filestore.New(cfg.FileStore)
		if err != nil {
			return fmt.Errorf("init file store: %w", err)
		}
	}

	chunker := ingest.NewChunker(cfg.Ingest)
	ingestService := service.NewIngestService(docRepo, chunkRepo, manager, chunker,
		catalog, dense, lexical, semCache, archive, m)
	if err := ingestService.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap index: %w", err)
	}

	stats := service.NewStatsRecorder()
	queryService := service.NewQueryService(manager, hybrid, semCache, complexity,
		checker, catalog, m, stats, cfg.Budget, cfg.AI.MaxRetries)

	checks := []handler.ReadyCheck{{Name: "cache", Ping: store.Ping}}
	if database != nil {
		checks = append(checks, handler.ReadyCheck{Name: "database", Ping: database.PingContext})
	}

	deps := handler.RouterDeps{
		Query:          handler.NewQueryHandler(queryService),
		Documents:      handler.NewDocumentHandler(ingestService),
		Cache:          handler.NewCacheHandler(semCache),
		Stats:          handler.NewStatsHandler(ingestService, stats),
		Health:         handler.NewHealthHandler(checks...),
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		HashedAPIKeys:  cfg.Auth.APIKeys,
		QueryRateLimit: cfg.QueryRateLimit(),
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if embedCacheRepo != nil {
		if err := scheduler.AddJob(job.NewEmbeddingSweepJob(embedCacheRepo), cfg.Jobs.EmbeddingSweepCron); err != nil {
			return err
		}
	}
	if err := scheduler.AddJob(job.NewStatsReportJob(ingestService, stats), cfg.Jobs.StatsCron); err != nil {
		return err
	}
	scheduler.Start(runCtx)
	defer scheduler.Stop()

	if cfg.Routing.PolicyFile != "" {
		watcher, err := approuter.NewPolicyWatcher(complexity, cfg.Routing.PolicyFile)
		if err != nil {
			logutil.GetLogger(ctx).Warn("routing policy watcher unavailable", zap.Error(err))
		} else {
			watcher.Start(runCtx)
			defer watcher.Stop(runCtx)
		}
	}

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	return nil
}

func buildCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return cache.NewRedisStore(client, cfg.Cache.ScanLimit), nil
	default:
		return cache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.ScanLimit, cfg.Cache.ResponseTTL()), nil
	}
}

func buildManager(cfg *config.Config, embedCacheRepo *repo.EmbeddingCacheRepo) (*ai.Manager, error) {
	cheap, err := buildGenerator(cfg.AI.Cheap)
	if err != nil {
		return nil, fmt.Errorf("init cheap tier: %w", err)
	}
	capable, err := buildGenerator(cfg.AI.Capable)
	if err != nil {
		return nil, fmt.Errorf("init capable tier: %w", err)
	}
	embedder, err := buildEmbedder(cfg.AI.Embedder)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	if embedCacheRepo != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, embedCacheRepo, cfg.Cache.EmbeddingTTL())
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.EmbedCacheSize, cfg.Cache.EmbeddingTTL())

	prices := make(map[string]ai.TierPrice, len(cfg.AI.Pricing))
	for tier, p := range cfg.AI.Pricing {
		prices[tier] = ai.TierPrice{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
	}
	return ai.NewManager(cheap, capable, embedder, ai.ManagerConfig{
		Timeout: cfg.AI.TimeoutSeconds,
		Prices:  prices,
	}), nil
}

func buildGenerator(pc config.AIProviderConfig) (ai.IGenerator, error) {
	provider, err := ai.NewProvider(pc.Provider, pc.Args)
	if err != nil {
		return nil, err
	}
	primary := ai.NewGenerator(provider, pc.Model)
	if len(pc.Fallbacks) == 0 {
		return primary, nil
	}
	entries := []ai.GeneratorEntry{{Name: pc.Provider + "/" + pc.Model, Generator: primary}}
	for _, fb := range pc.Fallbacks {
		fp, err := ai.NewProvider(fb.Provider, fb.Args)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      fb.Provider + "/" + fb.Model,
			Generator: ai.NewGenerator(fp, fb.Model),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(pc config.AIProviderConfig) (ai.IEmbedder, error) {
	provider, err := ai.NewProvider(pc.Provider, pc.Args)
	if err != nil {
		return nil, err
	}
	primary := ai.NewEmbedder(provider, pc.Model)
	if len(pc.Fallbacks) == 0 {
		return primary, nil
	}
	entries := []ai.EmbedderEntry{{Name: pc.Model, Embedder: primary}}
	for _, fb := range pc.Fallbacks {
		fp, err := ai.NewProvider(fb.Provider, fb.Args)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     fb.Model,
			Embedder: ai.NewEmbedder(fp, fb.Model),
		})
	}
	return ai.NewGroupEmbedder(entries), nil
}

// runReembed recomputes every stored chunk embedding with the configured
// model and upserts the result. Serving instances pick the fresh vectors up
// at their next bootstrap.
func runReembed(ctx context.Context, cfg *config.Config, database *sql.DB) error {
	chunkRepo := repo.NewChunkRepo(database)
	embedCacheRepo := repo.NewEmbeddingCacheRepo(database)
	manager, err := buildManager(cfg, embedCacheRepo)
	if err != nil {
		return err
	}

	chunks, err := chunkRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("model", manager.EmbeddingModelName()))
	logger.Info("reembedding chunks", zap.Int("total", len(chunks)))

	done := 0
	for _, chunk := range chunks {
		embedding, err := manager.Embed(ctx, chunk.Content, ai.TaskTypeDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
		}
		chunk.Embedding = embedding
		if err := chunkRepo.BatchCreate(ctx, []*model.Chunk{chunk}); err != nil {
			return fmt.Errorf("store chunk %s: %w", chunk.ID, err)
		}
		done++
		if done%100 == 0 {
			logger.Info("reembed progress", zap.Int("done", done), zap.Int("total", len(chunks)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reembedPause):
		}
	}
	logger.Info("reembed finished", zap.Int("done", done))
	return nil
}
