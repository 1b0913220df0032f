package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Empty-context policies for questions that retrieve no sections.
const (
	EmptyContextRefuse     = "refuse"
	EmptyContextUngrounded = "ungrounded"
)

// Ranker implementations.
const (
	RankerSQL    = "sql"
	RankerFusion = "fusion"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`
	// Ingest requests carry whole documents
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"26214400"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	// E5-style models expect "passage: " / "query: " prefixes
	DocumentPrefix string `envconfig:"EMBEDDING_DOCUMENT_PREFIX"`
	QueryPrefix    string `envconfig:"EMBEDDING_QUERY_PREFIX"`

	GenerationModel       string  `envconfig:"GENERATION_MODEL" default:"gpt-4o-mini"`
	GenerationTemperature float32 `envconfig:"GENERATION_TEMPERATURE" default:"0.2"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	EmbedBatchSize   int     `envconfig:"EMBED_BATCH_SIZE" default:"10"`
	EmbedConcurrency int     `envconfig:"EMBED_CONCURRENCY" default:"2"`
	EmbedRatePerSec  float64 `envconfig:"EMBED_RATE_PER_SEC" default:"5"`
	EmbedRateBurst   int     `envconfig:"EMBED_RATE_BURST" default:"5"`

	RetryMaxAttempts    int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"4"`
	RetryInitialBackoff time.Duration `envconfig:"RETRY_INITIAL_BACKOFF" default:"500ms"`
	RetryMaxBackoff     time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"8s"`

	EmbedTimeout    time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"120s"`
	SearchTimeout   time.Duration `envconfig:"SEARCH_TIMEOUT" default:"10s"`

	RetrievalK     int    `envconfig:"RETRIEVAL_K" default:"5"`
	CandidateCount int    `envconfig:"CANDIDATE_COUNT" default:"50"`
	Ranker         string `envconfig:"RANKER" default:"sql"`

	// Cross-encoder reranking is on when RERANK_URL is set. The retriever
	// over-fetches RERANK_CANDIDATES sections and keeps the top RETRIEVAL_K.
	RerankURL        string        `envconfig:"RERANK_URL"`
	RerankAPIKey     string        `envconfig:"RERANK_API_KEY"`
	RerankModel      string        `envconfig:"RERANK_MODEL" default:"cross-encoder/mmarco-mMiniLMv2-L12-H384-v1"`
	RerankCandidates int           `envconfig:"RERANK_CANDIDATES" default:"50"`
	RerankTimeout    time.Duration `envconfig:"RERANK_TIMEOUT" default:"30s"`

	EmptyContextPolicy string `envconfig:"EMPTY_CONTEXT_POLICY" default:"refuse"`
	RefusalMessage     string `envconfig:"REFUSAL_MESSAGE" default:"関連する資料が見つかりませんでした。"`

	IngestAtomic bool `envconfig:"INGEST_ATOMIC" default:"false"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"draftdesk-sources"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	StaleIngestionAfter time.Duration `envconfig:"STALE_INGESTION_AFTER" default:"30m"`

	// Bootstrap: create initial owner and API key on startup
	InitOwnerName string `envconfig:"INIT_OWNER_NAME"`
	InitAPIKey    string `envconfig:"INIT_API_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DRAFTDESK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_K must be positive")
	}
	if c.HasReranker() && c.RerankCandidates < c.RetrievalK {
		return fmt.Errorf("RERANK_CANDIDATES must be at least RETRIEVAL_K")
	}

	c.EmptyContextPolicy = strings.ToLower(strings.TrimSpace(c.EmptyContextPolicy))
	switch c.EmptyContextPolicy {
	case EmptyContextRefuse, EmptyContextUngrounded:
	default:
		return fmt.Errorf("EMPTY_CONTEXT_POLICY must be %q or %q", EmptyContextRefuse, EmptyContextUngrounded)
	}

	c.Ranker = strings.ToLower(strings.TrimSpace(c.Ranker))
	switch c.Ranker {
	case RankerSQL, RankerFusion:
	default:
		return fmt.Errorf("RANKER must be %q or %q", RankerSQL, RankerFusion)
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasReranker() bool {
	return c.RerankURL != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
