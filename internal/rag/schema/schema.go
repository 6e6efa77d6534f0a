package schema

import "time"

const (
	// MetadataKeyTitle is the key for the human-readable document title.
	MetadataKeyTitle = "title"
	// MetadataKeyUploadDate is the key for the ingestion timestamp (RFC 3339).
	MetadataKeyUploadDate = "upload_date"
	// MetadataKeyFileType is the key for the detected file-type tag.
	MetadataKeyFileType = "file_type"
	// MetadataKeyURL is the key for an optional reference link used in citations.
	MetadataKeyURL = "url"
)

// Document represents one ingested file: the extracted full text plus the
// metadata derived at ingestion time. It is immutable after creation; the only
// later operation is deleting the document together with its chunks.
type Document struct {
	// ID is the generated unique identifier for the document.
	ID string

	// Title is the display title, normally the uploaded filename unless the
	// caller supplied its own.
	Title string

	// UploadedAt is the ingestion timestamp.
	UploadedAt time.Time

	// FileType is the detected file-type tag (pdf, docx, md, txt, ...).
	FileType string

	// Text is the raw extracted text the chunks were cut from.
	Text string

	// Metadata holds the merged document metadata: derived fields overridden
	// by caller-supplied values.
	Metadata map[string]interface{}
}

// Chunk is a contiguous slice of a document's text, stored and retrieved as an
// independent unit. It back-references its document by ID and does not own it.
type Chunk struct {
	// DocumentID is the identifier of the owning document.
	DocumentID string

	// Index is the zero-based sequential position within the document.
	Index int

	// Text is the verbatim (whitespace-trimmed) span of the source text.
	Text string

	// Start and End are byte offsets of the span in the source text,
	// half-open [Start, End).
	Start int
	End   int

	// Metadata is the document metadata merged with chunk-local values.
	Metadata map[string]interface{}

	// Embedding is the vector representation of Text, set once the chunk has
	// been embedded for indexing.
	Embedding []float32
}

// RecordID returns the index record key for the chunk. The key uniquely
// identifies a (document, chunk) pair, so re-ingesting the same document ID
// with the same chunk index overwrites the prior record.
func (c Chunk) RecordID() string {
	return recordID(c.DocumentID, c.Index)
}

// SearchResult is one retrieval hit. Scores are normalized to [0, 1] so that
// downstream thresholding behaves the same regardless of which search strategy
// served the query.
type SearchResult struct {
	Text       string
	DocumentID string
	ChunkIndex int
	Metadata   map[string]interface{}
	Score      float64
}

// Title returns the result's document title, falling back to the document ID
// when the metadata carries none.
func (r SearchResult) Title() string {
	if t, ok := r.Metadata[MetadataKeyTitle].(string); ok && t != "" {
		return t
	}
	return r.DocumentID
}

// DocumentSummary is one entry of a document listing, derived from a sample
// record of each document group in the index.
type DocumentSummary struct {
	DocID      string                 `json:"doc_id"`
	Title      string                 `json:"title"`
	UploadDate string                 `json:"upload_date"`
	Metadata   map[string]interface{} `json:"-"`
}
