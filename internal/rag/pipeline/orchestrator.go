// Package pipeline ties retrieval and generation together: a query is matched
// against the index, the hits are assembled into a context block, and the
// completion model answers grounded on that block.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"agrichat/internal/llm"
	"agrichat/internal/rag/schema"
	"agrichat/internal/rag/vectorstore"
	"agrichat/pkg/logger"
)

const systemPrompt = `You are a helpful agricultural assistant. Answer questions based on the provided context documents.
If the context doesn't contain enough information, say so. Always cite sources when possible.`

const noContextSentinel = "No relevant documents found."

// Source is one citation attached to an answer, in retrieval rank order.
type Source struct {
	DocID string  `json:"docId"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Answer is the result of one query: the generated text plus the sources it
// was grounded on.
type Answer struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"sessionId"`
}

// Orchestrator runs the retrieve-then-generate flow.
type Orchestrator struct {
	store vectorstore.Store
	model llm.CompletionModel
	log   *logger.Logger
}

// NewOrchestrator wires the retrieval store and completion model together.
func NewOrchestrator(store vectorstore.Store, model llm.CompletionModel, log *logger.Logger) *Orchestrator {
	return &Orchestrator{store: store, model: model, log: log}
}

// Answer retrieves context for the query and generates a grounded response.
// When retrieval yields nothing the model is still invoked, with a sentinel
// context, so it can answer that no documents matched. An empty sessionID is
// replaced with "default".
func (o *Orchestrator) Answer(ctx context.Context, query, sessionID string) (*Answer, error) {
	results, err := o.store.Search(ctx, query, 0)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	userPrompt := fmt.Sprintf(`Context documents:
%s

User question: %s

Please provide a helpful answer based on the context above. If you reference information from the context, mention which document it came from.`, buildContext(results), query)

	text, err := o.model.Complete(ctx, userPrompt, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		url, _ := r.Metadata[schema.MetadataKeyURL].(string)
		sources = append(sources, Source{
			DocID: r.DocumentID,
			Title: r.Title(),
			URL:   url,
			Score: r.Score,
		})
	}

	if sessionID == "" {
		sessionID = "default"
	}
	o.log.WithPayload(map[string]interface{}{
		"session_id": sessionID,
		"sources":    len(sources),
	}).Info("query answered")

	return &Answer{Answer: text, Sources: sources, SessionID: sessionID}, nil
}

// buildContext renders the hits as numbered, titled blocks the model can cite
// by name.
func buildContext(results []schema.SearchResult) string {
	if len(results) == 0 {
		return noContextSentinel
	}
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Document %d: %s]\n%s\n", i+1, r.Title(), r.Text))
	}
	return strings.Join(parts, "\n")
}
