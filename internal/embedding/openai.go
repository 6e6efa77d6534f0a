package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"agrichat/internal/rag/schema"
)

// OpenAIModel is an embedding client for OpenAI-compatible endpoints.
type OpenAIModel struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// NewOpenAIModel creates an embedding client. baseURL may be empty to use the
// provider default. maxRetries is the number of retry attempts after a failed
// call; 0 preserves fail-fast behavior.
func NewOpenAIModel(apiKey, baseURL, model string, maxRetries int) (*OpenAIModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is required", schema.ErrInvalidConfiguration)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIModel{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

// Embed generates the embedding vector for a single text.
func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embedding vectors for a batch of texts.
func (m *OpenAIModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.model),
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = m.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}
		if attempt >= m.maxRetries {
			return nil, fmt.Errorf("%w: failed to create embeddings: %v", schema.ErrUpstreamFailure, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", schema.ErrUpstreamFailure, ctx.Err())
		case <-time.After(retryDelay(attempt)):
		}
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", schema.ErrUpstreamFailure, len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// retryDelay returns the exponential backoff delay for an attempt, capped at
// five seconds.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

var _ Embedding = (*OpenAIModel)(nil)
