// Package config loads service configuration from environment variables with
// sensible defaults, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"agrichat/internal/rag/schema"
)

// Config is the full service configuration.
type Config struct {
	// HTTPAddr is the listen address of the HTTP server.
	HTTPAddr string
	// LogLevel is the logrus level name (debug, info, warn, error).
	LogLevel string
	// CORSOrigins is the list of allowed origins; "*" allows any.
	CORSOrigins []string

	// OpenSearchEndpoint, when set, is used without probing the default
	// local addresses.
	OpenSearchEndpoint string
	// Region tags the deployment region in logs; it does not change behavior.
	Region string
	// IndexName is the search index holding chunk records.
	IndexName string

	// APIKey authenticates against the model provider.
	APIKey string
	// LLMBaseURL overrides the provider endpoint, for gateways and tests.
	LLMBaseURL string
	// CompletionModel is the chat model identifier.
	CompletionModel string
	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string
	// EmbeddingDimension is the vector width of the embedding model.
	EmbeddingDimension int
	// MaxTokens caps completion length.
	MaxTokens int
	// Temperature is the completion sampling temperature.
	Temperature float64
	// LLMMaxRetries is the number of retries on upstream failures; 0 fails
	// fast.
	LLMMaxRetries int

	// ChunkSize and ChunkOverlap control text splitting, in characters.
	ChunkSize    int
	ChunkOverlap int

	// TopK is the default number of search results.
	TopK int
	// SimilarityThreshold drops results scoring below it.
	SimilarityThreshold float64
	// TextScoreDivisor scales full-text relevance scores into [0, 1].
	TextScoreDivisor float64
	// IngestConcurrency bounds parallel chunk embedding during ingestion.
	IngestConcurrency int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win
// over it.
func Load() (*Config, error) {
	// Best effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getString("HTTP_ADDR", ":8000"),
		LogLevel:           getString("LOG_LEVEL", "info"),
		CORSOrigins:        getList("CORS_ORIGINS", []string{"*"}),
		OpenSearchEndpoint: getString("OPENSEARCH_ENDPOINT", ""),
		Region:             getString("REGION", "us-east-1"),
		IndexName:          getString("INDEX_NAME", "agri-documents"),
		APIKey:             getString("LLM_API_KEY", ""),
		LLMBaseURL:         getString("LLM_BASE_URL", ""),
		CompletionModel:    getString("COMPLETION_MODEL", "gpt-4o-mini"),
		EmbeddingModel:     getString("EMBEDDING_MODEL", "text-embedding-3-small"),
	}

	var err error
	if cfg.EmbeddingDimension, err = getInt("EMBEDDING_DIMENSION", 1536); err != nil {
		return nil, err
	}
	if cfg.MaxTokens, err = getInt("MAX_TOKENS", 2000); err != nil {
		return nil, err
	}
	if cfg.Temperature, err = getFloat("TEMPERATURE", 0.1); err != nil {
		return nil, err
	}
	if cfg.LLMMaxRetries, err = getInt("LLM_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = getInt("CHUNK_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getInt("CHUNK_OVERLAP", 200); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getInt("TOP_K", 5); err != nil {
		return nil, err
	}
	if cfg.SimilarityThreshold, err = getFloat("SIMILARITY_THRESHOLD", 0.7); err != nil {
		return nil, err
	}
	if cfg.TextScoreDivisor, err = getFloat("TEXT_SCORE_DIVISOR", 10); err != nil {
		return nil, err
	}
	if cfg.IngestConcurrency, err = getInt("INGEST_CONCURRENCY", 1); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive, got %d", schema.ErrInvalidConfiguration, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", schema.ErrInvalidConfiguration, c.ChunkOverlap)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION must be positive, got %d", schema.ErrInvalidConfiguration, c.EmbeddingDimension)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive, got %d", schema.ErrInvalidConfiguration, c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: SIMILARITY_THRESHOLD must be in [0, 1], got %g", schema.ErrInvalidConfiguration, c.SimilarityThreshold)
	}
	if c.TextScoreDivisor <= 0 {
		return fmt.Errorf("%w: TEXT_SCORE_DIVISOR must be positive, got %g", schema.ErrInvalidConfiguration, c.TextScoreDivisor)
	}
	return nil
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", schema.ErrInvalidConfiguration, key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", schema.ErrInvalidConfiguration, key, v)
	}
	return f, nil
}
