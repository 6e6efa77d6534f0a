package embedding

import "context"

// Embedding is the interface every embedding model client implements. Vectors
// have a fixed, provider-defined dimensionality.
type Embedding interface {
	// Embed generates the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for a batch of texts, one vector
	// per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
