package vectorstore

import (
	"context"
	"fmt"

	"agrichat/internal/embedding"
)

// searchStrategy builds the engine query for one retrieval mode and maps raw
// engine scores into [0, 1].
type searchStrategy interface {
	name() string
	buildQuery(ctx context.Context, query string, topK int) (map[string]interface{}, error)
	normalize(score float64) float64
}

// vectorStrategy embeds the query and runs an approximate nearest-neighbor
// search over the embedding field. Engine scores are already similarity-like
// in (0, 1], so normalization only clamps.
type vectorStrategy struct {
	embedder embedding.Embedding
}

func (s *vectorStrategy) name() string { return "vector" }

func (s *vectorStrategy) buildQuery(ctx context.Context, query string, topK int) (map[string]interface{}, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"knn": map[string]interface{}{
				"embedding": map[string]interface{}{
					"vector": vec,
					"k":      topK,
				},
			},
		},
		"_source": []string{"text", "doc_id", "chunk_id", "metadata"},
	}, nil
}

func (s *vectorStrategy) normalize(score float64) float64 {
	return clamp01(score)
}

// textStrategy runs a fuzzy full-text match over the chunk text. Relevance
// scores are unbounded, so they are scaled down by a configured divisor
// before clamping.
type textStrategy struct {
	scoreDivisor float64
}

func (s *textStrategy) name() string { return "text" }

func (s *textStrategy) buildQuery(_ context.Context, query string, topK int) (map[string]interface{}, error) {
	return map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"text": map[string]interface{}{
					"query":     query,
					"fuzziness": "AUTO",
				},
			},
		},
		"_source": []string{"text", "doc_id", "chunk_id", "metadata"},
	}, nil
}

func (s *textStrategy) normalize(score float64) float64 {
	d := s.scoreDivisor
	if d <= 0 {
		d = 10
	}
	return clamp01(score / d)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
