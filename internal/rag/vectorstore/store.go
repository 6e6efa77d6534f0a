// Package vectorstore persists chunk records in an external search engine and
// serves similarity queries over them, falling back to full-text search when
// the engine rejects vector fields.
package vectorstore

import (
	"context"

	"agrichat/internal/rag/schema"
)

// Store is the interface for persisting and querying index records.
type Store interface {
	// EnsureSchema idempotently creates the record schema, falling back to an
	// alternate vector field type when the engine rejects vector support.
	EnsureSchema(ctx context.Context) error

	// Upsert embeds each chunk and writes one record per chunk keyed by
	// {documentID}_{chunkIndex}, then forces the writes to become visible to
	// search before returning.
	Upsert(ctx context.Context, chunks []schema.Chunk, documentID string, metadata map[string]interface{}) error

	// Search returns up to topK results ranked by non-increasing score, each
	// score normalized to [0, 1]. Results below the similarity threshold are
	// dropped, but at least one result is returned whenever the engine
	// produced at least one hit. topK <= 0 selects the configured default.
	Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error)

	// DeleteDocument removes every record of the document and forces
	// visibility. Deleting a nonexistent document is a no-op.
	DeleteDocument(ctx context.Context, documentID string) error

	// DeleteAll removes every record in the index.
	DeleteAll(ctx context.Context) error

	// ListDocuments aggregates records by document and returns one summary
	// per document, derived from a sample record of each group.
	ListDocuments(ctx context.Context) ([]schema.DocumentSummary, error)
}
