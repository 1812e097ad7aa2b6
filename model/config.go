package model

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/siherrmann/briefings/helper"
	"gopkg.in/yaml.v3"
)

// Embedding providers.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderHugot  = "hugot"
)

// Config is the process wide configuration. It is built once at startup and
// passed by pointer, nothing reads settings from the environment afterwards.
type Config struct {
	// Chunking
	ChunkMaxTokens     int    `yaml:"chunk_max_tokens"`
	ChunkOverlapTokens int    `yaml:"chunk_overlap_tokens"`
	TokenizerEncoding  string `yaml:"tokenizer_encoding"`

	// Embeddings
	EmbeddingProvider   string `yaml:"embedding_provider"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	EmbeddingBatchSize  int    `yaml:"embedding_batch_size"`
	EmbeddingBaseURL    string `yaml:"embedding_base_url"`
	OpenAIAPIKey        string `yaml:"openai_api_key"`

	// Judge
	JudgeModel     string `yaml:"judge_model"`
	JudgeBatchSize int    `yaml:"judge_batch_size"`
	JudgeMaxWords  int    `yaml:"judge_max_words"`

	// Search
	PageSize          int `yaml:"page_size"`
	MaxQueryLength    int `yaml:"max_query_length"`
	CandidatePoolSize int `yaml:"candidate_pool_size"`

	// External calls
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
	EmbeddingTimeout  time.Duration `yaml:"embedding_timeout"`
	JudgeTimeout      time.Duration `yaml:"judge_timeout"`
	StorageTimeout    time.Duration `yaml:"storage_timeout"`

	Diagnostics bool   `yaml:"diagnostics"`
	LogLevel    string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ChunkMaxTokens:      512,
		ChunkOverlapTokens:  64,
		TokenizerEncoding:   "cl100k_base",
		EmbeddingProvider:   EmbeddingProviderOpenAI,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1536,
		EmbeddingBatchSize:  64,
		JudgeModel:          "gpt-4o-mini",
		JudgeBatchSize:      10,
		JudgeMaxWords:       180,
		PageSize:            25,
		MaxQueryLength:      200,
		CandidatePoolSize:   250,
		RequestsPerSecond:   3,
		MaxRetries:          3,
		EmbeddingTimeout:    30 * time.Second,
		JudgeTimeout:        60 * time.Second,
		StorageTimeout:      10 * time.Second,
		Diagnostics:         false,
		LogLevel:            "info",
	}
}

// Validate checks the invariants between settings.
// MaxIndexedDimensions is the largest vector pgvector can build an HNSW or
// IVFFlat index for.
const MaxIndexedDimensions = 2000

func (c *Config) Validate() error {
	switch {
	case c.ChunkMaxTokens <= 0:
		return fmt.Errorf("%w: chunk_max_tokens must be positive", ErrInvalidConfig)
	case c.ChunkOverlapTokens < 0:
		return fmt.Errorf("%w: chunk_overlap_tokens must not be negative", ErrInvalidConfig)
	case c.ChunkOverlapTokens >= c.ChunkMaxTokens:
		return fmt.Errorf("%w: chunk_overlap_tokens (%d) must be smaller than chunk_max_tokens (%d)", ErrInvalidConfig, c.ChunkOverlapTokens, c.ChunkMaxTokens)
	case c.EmbeddingProvider != EmbeddingProviderOpenAI && c.EmbeddingProvider != EmbeddingProviderHugot:
		return fmt.Errorf("%w: unknown embedding_provider %q", ErrInvalidConfig, c.EmbeddingProvider)
	case c.EmbeddingDimensions <= 0:
		return fmt.Errorf("%w: embedding_dimensions must be positive", ErrInvalidConfig)
	case c.EmbeddingDimensions > MaxIndexedDimensions:
		return fmt.Errorf("%w: embedding_dimensions (%d) must be at most %d to be indexed", ErrInvalidConfig, c.EmbeddingDimensions, MaxIndexedDimensions)
	case c.EmbeddingBatchSize <= 0:
		return fmt.Errorf("%w: embedding_batch_size must be positive", ErrInvalidConfig)
	case c.JudgeBatchSize <= 0:
		return fmt.Errorf("%w: judge_batch_size must be positive", ErrInvalidConfig)
	case c.JudgeMaxWords <= 0:
		return fmt.Errorf("%w: judge_max_words must be positive", ErrInvalidConfig)
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidConfig)
	case c.MaxQueryLength <= 0:
		return fmt.Errorf("%w: max_query_length must be positive", ErrInvalidConfig)
	case c.CandidatePoolSize < c.PageSize:
		return fmt.Errorf("%w: candidate_pool_size must be at least page_size", ErrInvalidConfig)
	case c.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: requests_per_second must be positive", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	case c.EmbeddingTimeout <= 0 || c.JudgeTimeout <= 0 || c.StorageTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

// JudgeConfigured reports whether the relevance judge can be built.
func (c *Config) JudgeConfigured() bool {
	return c.OpenAIAPIKey != "" && c.JudgeModel != ""
}

// LoadConfig builds the configuration from defaults, an optional YAML file and
// the environment, in that order. A missing file is not an error. A .env file in
// the working directory is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, helper.NewError("load .env", err)
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, helper.NewError("read config file", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, helper.NewError("parse config file", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, helper.NewError("config environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.EmbeddingProvider, "EMBEDDING_PROVIDER")
	setString(&c.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&c.EmbeddingBaseURL, "EMBEDDING_BASE_URL")
	setString(&c.JudgeModel, "JUDGE_MODEL")
	setString(&c.TokenizerEncoding, "TOKENIZER_ENCODING")
	setString(&c.LogLevel, "LOG_LEVEL")

	for name, target := range map[string]*int{
		"EMBEDDING_DIMENSIONS": &c.EmbeddingDimensions,
		"EMBEDDING_BATCH_SIZE": &c.EmbeddingBatchSize,
		"CHUNK_MAX_TOKENS":     &c.ChunkMaxTokens,
		"CHUNK_OVERLAP_TOKENS": &c.ChunkOverlapTokens,
		"JUDGE_BATCH_SIZE":     &c.JudgeBatchSize,
	} {
		if err := setInt(target, name); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv("SEARCH_DIAGNOSTICS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SEARCH_DIAGNOSTICS: %w", err)
		}
		c.Diagnostics = b
	}
	return nil
}

func setString(target *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*target = v
	}
}

func setInt(target *int, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*target = n
	return nil
}
