package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port             int                `json:"port"`
	LogConfig        logger.LogConfig   `json:"log_config"`
	CORSOrigins      []string           `json:"cors_origins"`
	QueryRateLimitMs int                `json:"query_rate_limit_ms"`
	Database         DatabaseConfig     `json:"database"`
	Redis            RedisConfig        `json:"redis"`
	Cache            CacheConfig        `json:"cache"`
	Retrieval        RetrievalConfig    `json:"retrieval"`
	Routing          RoutingConfig      `json:"routing"`
	AI               AIConfig           `json:"ai"`
	Guard            CollaboratorConfig `json:"guard"`
	Auth             AuthConfig         `json:"auth"`
	FileStore        FileStoreConfig    `json:"file_store"`
	Ingest           IngestConfig       `json:"ingest"`
	Jobs             JobsConfig         `json:"jobs"`
	Budget           BudgetConfig       `json:"budget"`
}

// QueryRateLimit is the per-client window on the query endpoint; zero
// disables limiting.
func (c *Config) QueryRateLimit() time.Duration {
	return time.Duration(c.QueryRateLimitMs) * time.Millisecond
}

// DatabaseConfig is optional; without it documents, chunks and the embedding
// cache live in memory only.
type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type CacheConfig struct {
	Backend             string  `json:"backend"`
	MaxEntries          int     `json:"max_entries"`
	ResponseTTLSeconds  int     `json:"response_ttl_seconds"`
	EmbeddingTTLHours   int     `json:"embedding_ttl_hours"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	ScanLimit           int     `json:"scan_limit"`
	LeaseTTLSeconds     int     `json:"lease_ttl_seconds"`
	LeaseWaitMs         int     `json:"lease_wait_ms"`
}

func (c CacheConfig) ResponseTTL() time.Duration {
	return time.Duration(c.ResponseTTLSeconds) * time.Second
}

func (c CacheConfig) EmbeddingTTL() time.Duration {
	return time.Duration(c.EmbeddingTTLHours) * time.Hour
}

type RetrievalConfig struct {
	TopK        int                `json:"top_k"`
	Alpha       float64            `json:"alpha"`
	DomainAlpha map[string]float64 `json:"domain_alpha"`
}

type RoutingConfig struct {
	PolicyFile string `json:"policy_file"`
}

// CollaboratorConfig selects a registered implementation by name and feeds
// its raw args through the factory's own decoder.
type CollaboratorConfig struct {
	Provider string                 `json:"provider"`
	Args     map[string]interface{} `json:"args"`
}

// AIProviderConfig binds one provider and model. Fallbacks are tried in
// order when the primary fails, so a tier can chain gateways.
type AIProviderConfig struct {
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
	Args      map[string]interface{} `json:"args"`
	Fallbacks []AIProviderConfig     `json:"fallbacks,omitempty"`
}

type AIConfig struct {
	Cheap          AIProviderConfig       `json:"cheap"`
	Capable        AIProviderConfig       `json:"capable"`
	Embedder       AIProviderConfig       `json:"embedder"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	MaxRetries     int                    `json:"max_retries"`
	Pricing        map[string]TierPricing `json:"pricing"`
	EmbedCacheSize int                    `json:"embed_cache_size"`
}

// TierPricing is USD per 1000 tokens, used only for the approximate cost
// reported per answer.
type TierPricing struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

type AuthConfig struct {
	JWTSecret     string   `json:"jwt_secret"`
	APIKeys       []string `json:"api_keys"`
	TokenTTLHours int      `json:"token_ttl_hours"`
}

func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != "" || len(c.APIKeys) > 0
}

// FileStoreConfig selects the archive backend; Data is decoded by the
// backend itself. An empty or "none" type disables archiving.
type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (c FileStoreConfig) Enabled() bool {
	return c.Type != "" && c.Type != "none"
}

type IngestConfig struct {
	ChunkTokenLimit   int `json:"chunk_token_limit"`
	ChunkTokenOverlap int `json:"chunk_token_overlap"`
}

type JobsConfig struct {
	EmbeddingSweepCron string `json:"embedding_sweep_cron"`
	StatsCron          string `json:"stats_cron"`
}

type BudgetConfig struct {
	EmbedTimeoutSeconds    int `json:"embed_timeout_seconds"`
	CacheTimeoutSeconds    int `json:"cache_timeout_seconds"`
	RetrieveTimeoutSeconds int `json:"retrieve_timeout_seconds"`
	GenerateTimeoutSeconds int `json:"generate_timeout_seconds"`
	SafetyTimeoutSeconds   int `json:"safety_timeout_seconds"`
	MarginSeconds          int `json:"margin_seconds"`
}

func (b BudgetConfig) Embed() time.Duration { return time.Duration(b.EmbedTimeoutSeconds) * time.Second }

func (b BudgetConfig) Cache() time.Duration { return time.Duration(b.CacheTimeoutSeconds) * time.Second }

func (b BudgetConfig) Retrieve() time.Duration {
	return time.Duration(b.RetrieveTimeoutSeconds) * time.Second
}

func (b BudgetConfig) Generate() time.Duration {
	return time.Duration(b.GenerateTimeoutSeconds) * time.Second
}

func (b BudgetConfig) Safety() time.Duration { return time.Duration(b.SafetyTimeoutSeconds) * time.Second }

// Overall is the request deadline: every step budget once, generation once
// per allowed attempt, plus the fixed margin.
func (b BudgetConfig) Overall(maxRetries int) time.Duration {
	gen := b.Generate() * time.Duration(maxRetries+1)
	return b.Embed() + 2*b.Cache() + b.Retrieve() + gen + b.Safety() +
		time.Duration(b.MarginSeconds)*time.Second
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for redis cache backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis")
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10000
	}
	if cfg.Cache.ResponseTTLSeconds == 0 {
		cfg.Cache.ResponseTTLSeconds = 3600
	}
	if cfg.Cache.EmbeddingTTLHours == 0 {
		cfg.Cache.EmbeddingTTLHours = 24
	}
	if cfg.Cache.SimilarityThreshold == 0 {
		cfg.Cache.SimilarityThreshold = 0.95
	}
	if cfg.Cache.ScanLimit == 0 {
		cfg.Cache.ScanLimit = 100
	}
	if cfg.Cache.LeaseTTLSeconds == 0 {
		cfg.Cache.LeaseTTLSeconds = 30
	}
	if cfg.Cache.LeaseWaitMs == 0 {
		cfg.Cache.LeaseWaitMs = 2000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.Alpha == 0 {
		cfg.Retrieval.Alpha = 0.7
	}
	for name, pc := range map[string]AIProviderConfig{
		"ai.cheap": cfg.AI.Cheap, "ai.capable": cfg.AI.Capable, "ai.embedder": cfg.AI.Embedder,
	} {
		if pc.Provider == "" {
			return fmt.Errorf("%s.provider is required", name)
		}
		if pc.Model == "" {
			return fmt.Errorf("%s.model is required", name)
		}
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = 2
	}
	if cfg.AI.EmbedCacheSize == 0 {
		cfg.AI.EmbedCacheSize = 4096
	}
	if cfg.Guard.Provider == "" {
		cfg.Guard.Provider = "none"
	}
	if cfg.Auth.TokenTTLHours == 0 {
		cfg.Auth.TokenTTLHours = 72
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "none"
	}
	if cfg.Ingest.ChunkTokenLimit == 0 {
		cfg.Ingest.ChunkTokenLimit = 400
	}
	if cfg.Ingest.ChunkTokenOverlap == 0 {
		cfg.Ingest.ChunkTokenOverlap = 80
	}
	if cfg.Jobs.EmbeddingSweepCron == "" {
		cfg.Jobs.EmbeddingSweepCron = "0 3 * * *"
	}
	if cfg.Jobs.StatsCron == "" {
		cfg.Jobs.StatsCron = "0 * * * *"
	}
	if cfg.Budget.EmbedTimeoutSeconds == 0 {
		cfg.Budget.EmbedTimeoutSeconds = 10
	}
	if cfg.Budget.CacheTimeoutSeconds == 0 {
		cfg.Budget.CacheTimeoutSeconds = 2
	}
	if cfg.Budget.RetrieveTimeoutSeconds == 0 {
		cfg.Budget.RetrieveTimeoutSeconds = 5
	}
	if cfg.Budget.GenerateTimeoutSeconds == 0 {
		cfg.Budget.GenerateTimeoutSeconds = 60
	}
	if cfg.Budget.SafetyTimeoutSeconds == 0 {
		cfg.Budget.SafetyTimeoutSeconds = 10
	}
	if cfg.Budget.MarginSeconds == 0 {
		cfg.Budget.MarginSeconds = 5
	}
	return nil
}
