// Package service composes the ingestion and retrieval components behind one
// application-facing API used by the HTTP handlers.
package service

import (
	"context"
	"fmt"

	"agrichat/internal/rag/pipeline"
	"agrichat/internal/rag/processor"
	"agrichat/internal/rag/schema"
	"agrichat/internal/rag/vectorstore"
	"agrichat/pkg/logger"
)

// IngestResult reports what one uploaded file became in the index.
type IngestResult struct {
	DocID  string `json:"doc_id"`
	Title  string `json:"title"`
	Chunks int    `json:"chunks"`
	Status string `json:"status"`
}

// Service wires the document processor, the index and the query pipeline.
type Service struct {
	processor    *processor.Processor
	store        vectorstore.Store
	orchestrator *pipeline.Orchestrator
	log          *logger.Logger
}

// New builds a Service from its already-constructed dependencies.
func New(proc *processor.Processor, store vectorstore.Store, orch *pipeline.Orchestrator, log *logger.Logger) *Service {
	return &Service{
		processor:    proc,
		store:        store,
		orchestrator: orch,
		log:          log,
	}
}

// Ingest extracts, chunks and indexes one uploaded file. Caller metadata
// overrides derived fields. A file that yields no text still succeeds, with
// zero chunks. There is no rollback: a failure partway through indexing can
// leave earlier chunks behind, and re-ingesting under the same document ID
// overwrites them.
func (s *Service) Ingest(ctx context.Context, content []byte, filename string, metadata map[string]interface{}) (*IngestResult, error) {
	doc, chunks, err := s.processor.Process(content, filename, metadata)
	if err != nil {
		return nil, fmt.Errorf("process %q: %w", filename, err)
	}
	if err := s.store.Upsert(ctx, chunks, doc.ID, doc.Metadata); err != nil {
		return nil, fmt.Errorf("index %q: %w", filename, err)
	}
	return &IngestResult{
		DocID:  doc.ID,
		Title:  doc.Title,
		Chunks: len(chunks),
		Status: "ingested",
	}, nil
}

// Ask answers a question grounded on the indexed documents.
func (s *Service) Ask(ctx context.Context, query, sessionID string) (*pipeline.Answer, error) {
	return s.orchestrator.Answer(ctx, query, sessionID)
}

// ListDocuments returns one summary per indexed document.
func (s *Service) ListDocuments(ctx context.Context) ([]schema.DocumentSummary, error) {
	return s.store.ListDocuments(ctx)
}

// DeleteDocument removes one document and all its chunks.
func (s *Service) DeleteDocument(ctx context.Context, docID string) error {
	return s.store.DeleteDocument(ctx, docID)
}

// DeleteAll empties the index.
func (s *Service) DeleteAll(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}
