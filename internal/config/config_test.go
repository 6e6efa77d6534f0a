package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrichat/internal/rag/schema"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "agri-documents", cfg.IndexName)
	assert.Equal(t, 1536, cfg.EmbeddingDimension)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.InDelta(t, 0.7, cfg.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Temperature, 1e-9)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, 0, cfg.LLMMaxRetries)
	assert.Equal(t, 1, cfg.IngestConcurrency)
	assert.InDelta(t, 10, cfg.TextScoreDivisor, 1e-9)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("OPENSEARCH_ENDPOINT", "http://search.internal:9200")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("TOP_K", "10")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("TEMPERATURE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://search.internal:9200", cfg.OpenSearchEndpoint)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.InDelta(t, 0.5, cfg.Temperature, 1e-9)
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")

	_, err := Load()
	require.ErrorIs(t, err, schema.ErrInvalidConfiguration)
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	cases := map[string]map[string]string{
		"overlap >= size":       {"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"},
		"negative overlap":      {"CHUNK_OVERLAP": "-1"},
		"zero chunk size":       {"CHUNK_SIZE": "0"},
		"zero top k":            {"TOP_K": "0"},
		"threshold above one":   {"SIMILARITY_THRESHOLD": "1.5"},
		"zero score divisor":    {"TEXT_SCORE_DIVISOR": "0"},
		"negative dimension":    {"EMBEDDING_DIMENSION": "-5"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.ErrorIs(t, err, schema.ErrInvalidConfiguration)
		})
	}
}
