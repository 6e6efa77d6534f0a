package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrichat/internal/rag/schema"
	"agrichat/pkg/logger"
)

type stubEmbedder struct {
	mu    sync.Mutex
	calls []string
	// failText makes Embed fail for exactly that input.
	failText string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	if s.failText != "" && text == s.failText {
		return nil, schema.ErrUpstreamFailure
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeEngine is a minimal in-memory OpenSearch stand-in covering exactly the
// requests the store issues.
type fakeEngine struct {
	mu sync.Mutex

	rejectVectorMapping bool
	rejectVectorQueries bool

	indexCreated  bool
	mappings      []map[string]interface{}
	records       map[string]map[string]interface{}
	searchBodies  []map[string]interface{}
	vectorQueries int
	refreshCount  int

	// searchHits, when set, is returned verbatim for non-aggregation searches.
	searchHits []map[string]interface{}
	// aggBuckets, when set, is returned for aggregation searches.
	aggBuckets []map[string]interface{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{records: map[string]map[string]interface{}{}}
}

func (f *fakeEngine) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/" && r.Method == http.MethodGet:
			fmt.Fprint(w, `{"version":{"number":"2.11.0"}}`)

		case r.URL.Path == "/agri-documents" && r.Method == http.MethodHead:
			if !f.indexCreated {
				w.WriteHeader(http.StatusNotFound)
			}

		case r.URL.Path == "/agri-documents" && r.Method == http.MethodPut:
			var mapping map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&mapping))
			f.mappings = append(f.mappings, mapping)
			if f.rejectVectorMapping && strings.Contains(jsonString(t, mapping), "knn_vector") {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":{"type":"mapper_parsing_exception"}}`)
				return
			}
			f.indexCreated = true
			fmt.Fprint(w, `{"acknowledged":true}`)

		case strings.HasPrefix(r.URL.Path, "/agri-documents/_doc/"):
			id := strings.TrimPrefix(r.URL.Path, "/agri-documents/_doc/")
			var record map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&record))
			f.records[id] = record
			fmt.Fprint(w, `{"result":"created"}`)

		case r.URL.Path == "/agri-documents/_search":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.searchBodies = append(f.searchBodies, body)

			if _, ok := body["aggs"]; ok {
				writeJSON(t, w, map[string]interface{}{
					"aggregations": map[string]interface{}{
						"unique_docs": map[string]interface{}{"buckets": f.aggBuckets},
					},
				})
				return
			}
			query := jsonString(t, body["query"])
			if strings.Contains(query, `"knn"`) {
				f.vectorQueries++
				if f.rejectVectorQueries {
					w.WriteHeader(http.StatusBadRequest)
					fmt.Fprint(w, `{"error":{"type":"search_phase_execution_exception"}}`)
					return
				}
			}
			writeJSON(t, w, map[string]interface{}{
				"hits": map[string]interface{}{"hits": f.searchHits},
			})

		case r.URL.Path == "/agri-documents/_delete_by_query":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			deleted := 0
			query := jsonString(t, body["query"])
			for id, record := range f.records {
				if strings.Contains(query, "match_all") || strings.Contains(query, fmt.Sprintf("%q", record["doc_id"])) {
					delete(f.records, id)
					deleted++
				}
			}
			writeJSON(t, w, map[string]interface{}{"deleted": deleted})

		case r.URL.Path == "/agri-documents/_refresh":
			f.refreshCount++
			fmt.Fprint(w, `{}`)

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func jsonString(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestStore(t *testing.T, engine *fakeEngine) (*OpenSearchStore, *stubEmbedder) {
	t.Helper()
	server := httptest.NewServer(engine.handler(t))
	t.Cleanup(server.Close)

	embedder := &stubEmbedder{}
	store, err := NewOpenSearchStore(Config{
		Endpoint:            server.URL,
		Dimension:           3,
		TopK:                5,
		SimilarityThreshold: 0.7,
		TextScoreDivisor:    10,
	}, embedder, logger.New("vectorstore-test"))
	require.NoError(t, err)
	return store, embedder
}

func hit(docID string, chunkID int, text string, score float64, metadata map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"_id":    fmt.Sprintf("%s_%d", docID, chunkID),
		"_score": score,
		"_source": map[string]interface{}{
			"text":     text,
			"doc_id":   docID,
			"chunk_id": chunkID,
			"metadata": metadata,
		},
	}
}

func TestEnsureSchemaCreatesVectorMapping(t *testing.T) {
	engine := newFakeEngine()
	store, _ := newTestStore(t, engine)

	require.NoError(t, store.EnsureSchema(context.Background()))

	require.Len(t, engine.mappings, 1)
	mapping := jsonString(t, engine.mappings[0])
	assert.Contains(t, mapping, "knn_vector")
	assert.Contains(t, mapping, `"dimension":3`)
	assert.Contains(t, mapping, `"knn":true`)

	// A second call is a no-op.
	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.Len(t, engine.mappings, 1)
}

func TestEnsureSchemaFallsBackWhenVectorMappingRejected(t *testing.T) {
	engine := newFakeEngine()
	engine.rejectVectorMapping = true
	store, embedder := newTestStore(t, engine)

	require.NoError(t, store.EnsureSchema(context.Background()))

	require.Len(t, engine.mappings, 2)
	assert.Contains(t, jsonString(t, engine.mappings[0]), "knn_vector")
	assert.NotContains(t, jsonString(t, engine.mappings[1]), "knn_vector")

	// The cached strategy is full-text: no embedding call, fuzzy match query.
	engine.searchHits = []map[string]interface{}{hit("doc-1", 0, "wheat rust", 8.0, nil)}
	results, err := store.Search(context.Background(), "wheat", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, embedder.callCount())
	assert.InDelta(t, 0.8, results[0].Score, 1e-9)
	assert.Contains(t, jsonString(t, engine.searchBodies[0]), "fuzziness")
}

func TestUpsertWritesOneRecordPerChunk(t *testing.T) {
	engine := newFakeEngine()
	store, embedder := newTestStore(t, engine)

	chunks := []schema.Chunk{
		{Index: 0, Text: "first chunk", Metadata: map[string]interface{}{"title": "Crops"}},
		{Index: 1, Text: "second chunk", Metadata: map[string]interface{}{"title": "Crops"}},
	}
	err := store.Upsert(context.Background(), chunks, "doc-7", map[string]interface{}{"url": "https://example.com"})
	require.NoError(t, err)

	require.Len(t, engine.records, 2)
	record, ok := engine.records["doc-7_0"]
	require.True(t, ok)
	assert.Equal(t, "first chunk", record["text"])
	assert.Equal(t, "doc-7", record["doc_id"])
	assert.Equal(t, float64(0), record["chunk_id"])

	metadata, ok := record["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Crops", metadata["title"])
	assert.Equal(t, "https://example.com", metadata["url"])

	_, ok = engine.records["doc-7_1"]
	assert.True(t, ok)

	assert.Equal(t, 2, embedder.callCount())
	assert.Equal(t, 1, engine.refreshCount, "writes must be made visible")
}

func TestUpsertPartialFailureLeavesEarlierRecords(t *testing.T) {
	engine := newFakeEngine()
	store, embedder := newTestStore(t, engine)
	embedder.failText = "third chunk"

	chunks := []schema.Chunk{
		{Index: 0, Text: "first chunk"},
		{Index: 1, Text: "second chunk"},
		{Index: 2, Text: "third chunk"},
	}
	err := store.Upsert(context.Background(), chunks, "doc-3", nil)
	require.ErrorIs(t, err, schema.ErrUpstreamFailure)

	// There is no rollback: records written before the failure stay in the
	// index, and the failed ingest is never made visible via refresh.
	_, ok := engine.records["doc-3_0"]
	assert.True(t, ok)
	_, ok = engine.records["doc-3_1"]
	assert.True(t, ok)
	_, ok = engine.records["doc-3_2"]
	assert.False(t, ok)
	assert.Equal(t, 0, engine.refreshCount)

	// Re-ingesting under the same document ID overwrites the survivors.
	embedder.failText = ""
	require.NoError(t, store.Upsert(context.Background(), chunks, "doc-3", nil))
	assert.Len(t, engine.records, 3)
	assert.Equal(t, 1, engine.refreshCount)
}

func TestUpsertEmptyChunksIsNoOp(t *testing.T) {
	engine := newFakeEngine()
	store, embedder := newTestStore(t, engine)

	require.NoError(t, store.Upsert(context.Background(), nil, "doc-0", nil))
	assert.Empty(t, engine.records)
	assert.Equal(t, 0, embedder.callCount())
}

func TestSearchAppliesThreshold(t *testing.T) {
	engine := newFakeEngine()
	engine.searchHits = []map[string]interface{}{
		hit("doc-1", 0, "relevant", 0.9, map[string]interface{}{"title": "Soil Guide"}),
		hit("doc-2", 3, "weak", 0.6, nil),
	}
	store, embedder := newTestStore(t, engine)

	results, err := store.Search(context.Background(), "soil nutrients", 0)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.Equal(t, "Soil Guide", results[0].Title())
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)

	// The query itself was embedded for the vector search.
	assert.Equal(t, []string{"soil nutrients"}, embedder.calls)
	assert.Contains(t, jsonString(t, engine.searchBodies[0]), `"size":5`)
}

func TestSearchKeepsBestHitBelowThreshold(t *testing.T) {
	engine := newFakeEngine()
	engine.searchHits = []map[string]interface{}{
		hit("doc-1", 0, "weak best", 0.5, nil),
		hit("doc-2", 1, "weaker", 0.4, nil),
	}
	store, _ := newTestStore(t, engine)

	results, err := store.Search(context.Background(), "anything", 3)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocumentID)
}

func TestSearchReturnsEmptyOnNoHits(t *testing.T) {
	engine := newFakeEngine()
	store, _ := newTestStore(t, engine)

	results, err := store.Search(context.Background(), "nothing indexed", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDowngradesWhenVectorQueryRejected(t *testing.T) {
	engine := newFakeEngine()
	engine.rejectVectorQueries = true
	engine.searchHits = []map[string]interface{}{hit("doc-1", 0, "fallback hit", 7.0, nil)}
	store, _ := newTestStore(t, engine)

	results, err := store.Search(context.Background(), "first query", 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.7, results[0].Score, 1e-9)
	assert.Equal(t, 1, engine.vectorQueries)

	// The downgrade is cached: the next search skips the vector attempt.
	_, err = store.Search(context.Background(), "second query", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.vectorQueries)
}

func TestDeleteDocument(t *testing.T) {
	engine := newFakeEngine()
	store, _ := newTestStore(t, engine)

	chunks := []schema.Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}
	require.NoError(t, store.Upsert(context.Background(), chunks, "doc-9", nil))
	require.NoError(t, store.Upsert(context.Background(), chunks[:1], "doc-other", nil))

	require.NoError(t, store.DeleteDocument(context.Background(), "doc-9"))

	assert.Len(t, engine.records, 1)
	_, ok := engine.records["doc-other_0"]
	assert.True(t, ok)
}

func TestDeleteDocumentMissingIsNoOp(t *testing.T) {
	engine := newFakeEngine()
	store, _ := newTestStore(t, engine)

	require.NoError(t, store.DeleteDocument(context.Background(), "never-ingested"))
}

func TestDeleteAll(t *testing.T) {
	engine := newFakeEngine()
	store, _ := newTestStore(t, engine)

	require.NoError(t, store.Upsert(context.Background(), []schema.Chunk{{Index: 0, Text: "a"}}, "doc-1", nil))
	require.NoError(t, store.Upsert(context.Background(), []schema.Chunk{{Index: 0, Text: "b"}}, "doc-2", nil))

	require.NoError(t, store.DeleteAll(context.Background()))
	assert.Empty(t, engine.records)
}

func TestListDocuments(t *testing.T) {
	engine := newFakeEngine()
	engine.aggBuckets = []map[string]interface{}{
		{
			"key":       "doc-1",
			"doc_count": 4,
			"sample": map[string]interface{}{
				"hits": map[string]interface{}{
					"hits": []map[string]interface{}{
						{"_source": map[string]interface{}{"metadata": map[string]interface{}{
							"title":       "Irrigation Basics",
							"upload_date": "2025-06-01T10:00:00Z",
						}}},
					},
				},
			},
		},
		{
			"key":       "doc-2",
			"doc_count": 1,
			"sample": map[string]interface{}{
				"hits": map[string]interface{}{
					"hits": []map[string]interface{}{
						{"_source": map[string]interface{}{"metadata": map[string]interface{}{}}},
					},
				},
			},
		},
	}
	store, _ := newTestStore(t, engine)

	summaries, err := store.ListDocuments(context.Background())
	require.NoError(t, err)

	require.Len(t, summaries, 2)
	assert.Equal(t, "doc-1", summaries[0].DocID)
	assert.Equal(t, "Irrigation Basics", summaries[0].Title)
	assert.Equal(t, "2025-06-01T10:00:00Z", summaries[0].UploadDate)

	// Missing metadata falls back to the document ID.
	assert.Equal(t, "doc-2", summaries[1].DocID)
	assert.Equal(t, "doc-2", summaries[1].Title)
	assert.Empty(t, summaries[1].UploadDate)
}

func TestNewOpenSearchStoreValidation(t *testing.T) {
	log := logger.New("vectorstore-test")

	_, err := NewOpenSearchStore(Config{Dimension: 3}, nil, log)
	require.ErrorIs(t, err, schema.ErrInvalidConfiguration)

	_, err = NewOpenSearchStore(Config{}, &stubEmbedder{}, log)
	require.ErrorIs(t, err, schema.ErrInvalidConfiguration)
}
