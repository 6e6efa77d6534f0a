package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"golang.org/x/sync/errgroup"

	"agrichat/internal/embedding"
	"agrichat/internal/rag/schema"
	"agrichat/pkg/logger"
)

const (
	defaultIndexName = "agri-documents"
	probeTimeout     = 3 * time.Second
	listBucketLimit  = 1000
)

// defaultAddresses are probed in order when no endpoint is configured.
var defaultAddresses = []string{
	"http://opensearch:9200",
	"http://localhost:9200",
}

// Config holds the tunables of the OpenSearch-backed store.
type Config struct {
	// Endpoint, when set, is used as-is without probing. When empty the
	// default addresses are probed in order.
	Endpoint string

	IndexName           string
	Dimension           int
	TopK                int
	SimilarityThreshold float64
	TextScoreDivisor    float64

	// IngestConcurrency bounds the number of chunks embedded and written in
	// parallel during Upsert. Values below 1 mean sequential ingestion.
	IngestConcurrency int
}

// OpenSearchStore keeps one record per chunk in an OpenSearch index. The
// connection is established lazily so the store can be constructed while the
// engine is still starting; every operation retries the connection until one
// succeeds.
type OpenSearchStore struct {
	cfg      Config
	embedder embedding.Embedding
	log      *logger.Logger

	mu          sync.Mutex
	client      *opensearch.Client
	schemaReady bool
	strategy    searchStrategy
}

var _ Store = (*OpenSearchStore)(nil)

// NewOpenSearchStore builds a store over the configured endpoint. Failing to
// reach the engine is not an error here; the connection is retried on first
// use.
func NewOpenSearchStore(cfg Config, embedder embedding.Embedding, log *logger.Logger) (*OpenSearchStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding model is required", schema.ErrInvalidConfiguration)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", schema.ErrInvalidConfiguration, cfg.Dimension)
	}
	if cfg.IndexName == "" {
		cfg.IndexName = defaultIndexName
	}

	s := &OpenSearchStore{
		cfg:      cfg,
		embedder: embedder,
		log:      log,
	}
	if err := s.connect(context.Background()); err != nil {
		log.WithError(err).Warn("search engine unreachable, will retry on first use")
	}
	return s, nil
}

// connect resolves a working client. With a configured endpoint the client is
// built directly; otherwise the default addresses are probed in order and the
// first one answering an info request wins.
func (s *OpenSearchStore) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	if s.cfg.Endpoint != "" {
		client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{s.cfg.Endpoint}})
		if err != nil {
			return fmt.Errorf("%w: %v", schema.ErrIndexUnavailable, err)
		}
		s.client = client
		s.log.WithField("endpoint", s.cfg.Endpoint).Info("using configured search endpoint")
		return nil
	}

	for _, addr := range defaultAddresses {
		client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{addr}})
		if err != nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		res, err := client.Info(client.Info.WithContext(probeCtx))
		cancel()
		if err != nil {
			continue
		}
		res.Body.Close()
		if res.IsError() {
			continue
		}
		s.client = client
		s.log.WithField("endpoint", addr).Info("connected to search engine")
		return nil
	}
	return fmt.Errorf("%w: no reachable endpoint among %v", schema.ErrIndexUnavailable, defaultAddresses)
}

// ready returns a connected client with the schema in place.
func (s *OpenSearchStore) ready(ctx context.Context) (*opensearch.Client, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, nil
}

// EnsureSchema creates the index when it does not exist yet. The vector
// mapping is tried first; when the engine rejects it the store falls back to
// a plain mapping and caches the full-text search strategy for the lifetime
// of the process.
func (s *OpenSearchStore) EnsureSchema(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemaReady {
		return nil
	}
	client := s.client

	res, err := client.Indices.Exists(
		[]string{s.cfg.IndexName},
		client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: check index: %v", schema.ErrIndexUnavailable, err)
	}
	exists := res.StatusCode == 200
	res.Body.Close()

	if exists {
		// The index may predate this process; assume the vector mapping is
		// in place and let a rejected query downgrade the strategy later.
		s.schemaReady = true
		if s.strategy == nil {
			s.strategy = &vectorStrategy{embedder: s.embedder}
		}
		return nil
	}

	if created, err := s.createIndex(ctx, s.vectorMapping()); err != nil {
		return err
	} else if created {
		s.schemaReady = true
		s.strategy = &vectorStrategy{embedder: s.embedder}
		s.log.WithField("index", s.cfg.IndexName).Info("created index with vector mapping")
		return nil
	}

	if created, err := s.createIndex(ctx, s.fallbackMapping()); err != nil {
		return err
	} else if !created {
		return fmt.Errorf("%w: index creation rejected for both mappings", schema.ErrIndexUnavailable)
	}
	s.schemaReady = true
	s.strategy = &textStrategy{scoreDivisor: s.cfg.TextScoreDivisor}
	s.log.WithField("index", s.cfg.IndexName).Warn("vector mapping rejected, created index with full-text fallback")
	return nil
}

// createIndex attempts to create the index with the given mapping. A mapping
// rejected by the engine yields (false, nil) so the caller can try the next
// one; transport failures are returned as errors.
func (s *OpenSearchStore) createIndex(ctx context.Context, mapping map[string]interface{}) (bool, error) {
	body, err := jsonBody(mapping)
	if err != nil {
		return false, err
	}
	res, err := s.client.Indices.Create(
		s.cfg.IndexName,
		s.client.Indices.Create.WithBody(body),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("%w: create index: %v", schema.ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		s.log.WithPayload(map[string]interface{}{
			"status":   res.StatusCode,
			"response": string(raw),
		}).Warn("index creation rejected")
		return false, nil
	}
	return true, nil
}

func (s *OpenSearchStore) vectorMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"index": map[string]interface{}{"knn": true},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "text"},
				"embedding": map[string]interface{}{
					"type":      "knn_vector",
					"dimension": s.cfg.Dimension,
					"method": map[string]interface{}{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     "nmslib",
					},
				},
				"doc_id":   map[string]interface{}{"type": "keyword"},
				"chunk_id": map[string]interface{}{"type": "integer"},
				"metadata": map[string]interface{}{"type": "object"},
			},
		},
	}
}

func (s *OpenSearchStore) fallbackMapping() map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"text":      map[string]interface{}{"type": "text"},
				"embedding": map[string]interface{}{"type": "float"},
				"doc_id":    map[string]interface{}{"type": "keyword"},
				"chunk_id":  map[string]interface{}{"type": "integer"},
				"metadata":  map[string]interface{}{"type": "object"},
			},
		},
	}
}

// Upsert embeds every chunk and writes one record per chunk. Embedding and
// writes run under the configured concurrency bound; a failed chunk cancels
// the remaining ones, and records already written stay in place. All writes
// are made visible to search before returning.
func (s *OpenSearchStore) Upsert(ctx context.Context, chunks []schema.Chunk, documentID string, metadata map[string]interface{}) error {
	client, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.IngestConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := range chunks {
		chunk := chunks[i]
		chunk.DocumentID = documentID
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunk.Index, err)
			}
			record := map[string]interface{}{
				"text":      chunk.Text,
				"embedding": vec,
				"doc_id":    documentID,
				"chunk_id":  chunk.Index,
				"metadata":  mergeMetadata(metadata, chunk.Metadata),
			}
			body, err := jsonBody(record)
			if err != nil {
				return err
			}
			res, err := client.Index(
				s.cfg.IndexName,
				body,
				client.Index.WithDocumentID(chunk.RecordID()),
				client.Index.WithContext(gctx),
			)
			if err != nil {
				return fmt.Errorf("%w: index chunk %d: %v", schema.ErrIndexUnavailable, chunk.Index, err)
			}
			defer res.Body.Close()
			if res.IsError() {
				return fmt.Errorf("%w: index chunk %d: status %d", schema.ErrIndexUnavailable, chunk.Index, res.StatusCode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.refresh(ctx, client); err != nil {
		return err
	}
	s.log.WithPayload(map[string]interface{}{
		"doc_id": documentID,
		"chunks": len(chunks),
	}).Info("document indexed")
	return nil
}

// Search runs the active strategy, downgrading from vector to full-text
// search once if the engine rejects the vector query.
func (s *OpenSearchStore) Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if topK <= 0 {
		topK = 5
	}

	strategy := s.activeStrategy()
	results, rejected, err := s.runSearch(ctx, client, strategy, query, topK)
	if err != nil {
		return nil, err
	}
	if rejected {
		if _, isVector := strategy.(*vectorStrategy); isVector {
			s.log.Warn("vector query rejected, downgrading to full-text search")
			strategy = s.downgradeStrategy()
			results, rejected, err = s.runSearch(ctx, client, strategy, query, topK)
			if err != nil {
				return nil, err
			}
		}
		if rejected {
			return nil, fmt.Errorf("%w: %s query rejected", schema.ErrIndexUnavailable, strategy.name())
		}
	}
	return s.applyThreshold(results), nil
}

func (s *OpenSearchStore) activeStrategy() searchStrategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strategy == nil {
		s.strategy = &vectorStrategy{embedder: s.embedder}
	}
	return s.strategy
}

func (s *OpenSearchStore) downgradeStrategy() searchStrategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = &textStrategy{scoreDivisor: s.cfg.TextScoreDivisor}
	return s.strategy
}

// runSearch executes one query. A 4xx from the engine reports the strategy
// as rejected instead of failing, so the caller can downgrade.
func (s *OpenSearchStore) runSearch(ctx context.Context, client *opensearch.Client, strategy searchStrategy, query string, topK int) ([]schema.SearchResult, bool, error) {
	q, err := strategy.buildQuery(ctx, query, topK)
	if err != nil {
		return nil, false, err
	}
	body, err := jsonBody(q)
	if err != nil {
		return nil, false, err
	}
	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(s.cfg.IndexName),
		client.Search.WithBody(body),
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: search: %v", schema.ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			io.Copy(io.Discard, res.Body)
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("%w: search: status %d", schema.ErrIndexUnavailable, res.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("%w: decode search response: %v", schema.ErrIndexUnavailable, err)
	}

	results := make([]schema.SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, schema.SearchResult{
			DocumentID: hit.Source.DocID,
			ChunkIndex: hit.Source.ChunkID,
			Text:       hit.Source.Text,
			Score:      strategy.normalize(hit.Score),
			Metadata:   hit.Source.Metadata,
		})
	}
	return results, false, nil
}

// applyThreshold drops results below the similarity threshold but always
// keeps the best hit when the engine returned anything at all.
func (s *OpenSearchStore) applyThreshold(results []schema.SearchResult) []schema.SearchResult {
	if len(results) == 0 {
		return results
	}
	kept := results[:0:0]
	for _, r := range results {
		if r.Score >= s.cfg.SimilarityThreshold {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, results[0])
	}
	return kept
}

// DeleteDocument removes every record whose doc_id matches. Matching zero
// records is not an error.
func (s *OpenSearchStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.deleteByQuery(ctx, map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": documentID},
		},
	}, map[string]interface{}{"doc_id": documentID})
}

// DeleteAll removes every record in the index.
func (s *OpenSearchStore) DeleteAll(ctx context.Context) error {
	return s.deleteByQuery(ctx, map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
	}, map[string]interface{}{"scope": "all"})
}

func (s *OpenSearchStore) deleteByQuery(ctx context.Context, query map[string]interface{}, fields map[string]interface{}) error {
	client, err := s.ready(ctx)
	if err != nil {
		return err
	}
	body, err := jsonBody(query)
	if err != nil {
		return err
	}
	res, err := client.DeleteByQuery(
		[]string{s.cfg.IndexName},
		body,
		client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", schema.ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: delete: status %d", schema.ErrIndexUnavailable, res.StatusCode)
	}

	var parsed struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err == nil {
		fields["deleted"] = parsed.Deleted
	}
	if err := s.refresh(ctx, client); err != nil {
		return err
	}
	s.log.WithPayload(fields).Info("records deleted")
	return nil
}

// ListDocuments groups records by doc_id and builds one summary per group
// from a single sampled record.
func (s *OpenSearchStore) ListDocuments(ctx context.Context) ([]schema.DocumentSummary, error) {
	client, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	body, err := jsonBody(map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"unique_docs": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "doc_id",
					"size":  listBucketLimit,
				},
				"aggs": map[string]interface{}{
					"sample": map[string]interface{}{
						"top_hits": map[string]interface{}{
							"size":    1,
							"_source": []string{"metadata"},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(s.cfg.IndexName),
		client.Search.WithBody(body),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", schema.ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%w: list documents: status %d", schema.ErrIndexUnavailable, res.StatusCode)
	}

	var parsed aggregationResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode aggregation response: %v", schema.ErrIndexUnavailable, err)
	}

	summaries := make([]schema.DocumentSummary, 0, len(parsed.Aggregations.UniqueDocs.Buckets))
	for _, bucket := range parsed.Aggregations.UniqueDocs.Buckets {
		summary := schema.DocumentSummary{
			DocID: bucket.Key,
			Title: bucket.Key,
		}
		if hits := bucket.Sample.Hits.Hits; len(hits) > 0 {
			md := hits[0].Source.Metadata
			summary.Metadata = md
			if title, ok := md[schema.MetadataKeyTitle].(string); ok && title != "" {
				summary.Title = title
			}
			if date, ok := md[schema.MetadataKeyUploadDate].(string); ok {
				summary.UploadDate = date
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *OpenSearchStore) refresh(ctx context.Context, client *opensearch.Client) error {
	res, err := client.Indices.Refresh(
		client.Indices.Refresh.WithIndex(s.cfg.IndexName),
		client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: refresh: %v", schema.ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: refresh: status %d", schema.ErrIndexUnavailable, res.StatusCode)
	}
	return nil
}

func mergeMetadata(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func jsonBody(v interface{}) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Text     string                 `json:"text"`
				DocID    string                 `json:"doc_id"`
				ChunkID  int                    `json:"chunk_id"`
				Metadata map[string]interface{} `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type aggregationResponse struct {
	Aggregations struct {
		UniqueDocs struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int    `json:"doc_count"`
				Sample   struct {
					Hits struct {
						Hits []struct {
							Source struct {
								Metadata map[string]interface{} `json:"metadata"`
							} `json:"_source"`
						} `json:"hits"`
					} `json:"hits"`
				} `json:"sample"`
			} `json:"buckets"`
		} `json:"unique_docs"`
	} `json:"aggregations"`
}
