// Package config loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/knoguchi/tourney/internal/ingestion"
	"github.com/knoguchi/tourney/internal/tournament"
)

// Comparator backends.
const (
	BackendLLM       = "llm"
	BackendEmbedding = "embedding"
	BackendHTTP      = "http"
)

// File names used inside TIRA_INPUT_DIR and TIRA_OUTPUT_DIR.
const (
	DefaultInputFile  = "rerank.jsonl.gz"
	DefaultOutputFile = "run.txt"
)

// Config holds all configuration for the reranker.
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Input / output
	// INPUT_PATH and OUTPUT_PATH win over the TIRA directories, which
	// default the file names to rerank.jsonl.gz and run.txt.
	InputPath   string `env:"INPUT_PATH"`
	InputDir    string `env:"TIRA_INPUT_DIR"`
	InputFormat string `env:"INPUT_FORMAT" envDefault:"dump"` // dump or records
	OutputPath  string `env:"OUTPUT_PATH"`
	OutputDir   string `env:"TIRA_OUTPUT_DIR"`
	RunTag      string `env:"RUN_TAG" envDefault:"tourney"`

	// Record keys, for inputs that use non-default field names
	FirstStageKey string `env:"FIRSTSTAGE_RESULT_KEY" envDefault:"bm25_results"`
	DocIDKey      string `env:"DOCID_KEY" envDefault:"docid"`
	PIDKey        string `env:"PID_KEY" envDefault:"pid"`
	QrelsKey      string `env:"QRELS_KEY" envDefault:"qrels"`
	ScoreKey      string `env:"SCORE_KEY" envDefault:"bm25_score"`
	QueryTextKey  string `env:"QUESTION_TEXT_KEY" envDefault:"q_text"`
	TextKey       string `env:"TEXT_KEY" envDefault:"text"`
	TitleKey      string `env:"TITLE_KEY" envDefault:"title"`

	// Tournament
	TopK            int    `env:"TOPK" envDefault:"100"`
	ListwiseK       int    `env:"LISTWISE_K" envDefault:"5"`
	OutK            int    `env:"OUT_K" envDefault:"2"`
	RerankTopK      int    `env:"RERANK_TOPK" envDefault:"10"`
	DummyNumber     int    `env:"DUMMY_NUMBER" envDefault:"21"`
	BatchSize       int    `env:"BSIZE" envDefault:"20"`
	Concurrency     int    `env:"CONCURRENCY" envDefault:"4"`
	Seed            uint64 `env:"SEED" envDefault:"0"`
	Truncation      string `env:"TRUNCATION" envDefault:"group"`
	SkipNoCandidate bool   `env:"SKIP_NO_CANDIDATE" envDefault:"false"`
	SkipIsSubset    bool   `env:"SKIP_ISSUBSET" envDefault:"false"`

	// Comparator
	ComparatorBackend string        `env:"COMPARATOR_BACKEND" envDefault:"llm"`
	ComparatorURL     string        `env:"COMPARATOR_URL" envDefault:"http://localhost:8001"`
	ComparatorTimeout time.Duration `env:"COMPARATOR_TIMEOUT" envDefault:"2m"`
	MaxInputTokens    int           `env:"MAX_INPUT_TOKENS" envDefault:"-1"`
	CacheSize         int           `env:"COMPARATOR_CACHE_SIZE" envDefault:"4096"`
	RateLimit         float64       `env:"COMPARATOR_RATE_LIMIT" envDefault:"0"` // batches per second, 0 disables
	BreakerFailures   uint32        `env:"COMPARATOR_BREAKER_FAILURES" envDefault:"5"`
	BreakerTimeout    time.Duration `env:"COMPARATOR_BREAKER_TIMEOUT" envDefault:"30s"`

	// Ollama
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaLLMModel       string `env:"OLLAMA_LLM_MODEL" envDefault:"llama3.2"`

	// PostgreSQL, empty disables the run repository
	DatabaseURL string `env:"DATABASE_URL"`

	// Qdrant passage hydration, empty collection disables it
	QdrantGRPCURL    string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantCollection string `env:"QDRANT_COLLECTION"`

	// Auth for the HTTP API; both empty disables auth
	APIKey    string        `env:"API_KEY"`
	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.InputPath == "" {
		cfg.InputPath = filepath.Join(cfg.InputDir, DefaultInputFile)
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(cfg.OutputDir, DefaultOutputFile)
	}
	return cfg, nil
}

// Tournament returns the engine parameters.
func (c *Config) Tournament() tournament.Params {
	return tournament.Params{
		TopK:            c.TopK,
		ListwiseK:       c.ListwiseK,
		OutK:            c.OutK,
		RerankTopK:      c.RerankTopK,
		DummyNumber:     c.DummyNumber,
		BatchSize:       c.BatchSize,
		Concurrency:     c.Concurrency,
		Seed:            c.Seed,
		Truncation:      tournament.Truncation(c.Truncation),
		SkipNoCandidate: c.SkipNoCandidate,
		SkipIsSubset:    c.SkipIsSubset,
	}
}

// Keys returns the input record field names.
func (c *Config) Keys() ingestion.Keys {
	return ingestion.Keys{
		FirstStage: c.FirstStageKey,
		PID:        c.PIDKey,
		DocID:      c.DocIDKey,
		Qrels:      c.QrelsKey,
		Score:      c.ScoreKey,
		QueryText:  c.QueryTextKey,
		Text:       c.TextKey,
		Title:      c.TitleKey,
	}
}

// Validate rejects invalid parameter combinations before any query is processed.
func (c *Config) Validate() error {
	if err := c.Tournament().Validate(); err != nil {
		return err
	}
	switch c.ComparatorBackend {
	case BackendLLM, BackendEmbedding, BackendHTTP:
	default:
		return &tournament.ConfigError{
			Field:  "COMPARATOR_BACKEND",
			Reason: fmt.Sprintf("unknown backend %q", c.ComparatorBackend),
		}
	}
	switch c.InputFormat {
	case "dump", "records":
	default:
		return &tournament.ConfigError{
			Field:  "INPUT_FORMAT",
			Reason: fmt.Sprintf("unknown format %q", c.InputFormat),
		}
	}
	return nil
}
