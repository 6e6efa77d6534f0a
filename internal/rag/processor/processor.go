// Package processor turns uploaded files into documents and chunks: it picks
// a text extractor by file extension, derives document metadata, and hands
// the extracted text to the chunker.
package processor

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"agrichat/internal/rag/chunker"
	"agrichat/internal/rag/extractors"
	"agrichat/internal/rag/schema"
	"agrichat/pkg/logger"
)

// Processor dispatches file bytes to a format extractor and chunks the
// resulting text.
type Processor struct {
	chunker  *chunker.Chunker
	log      *logger.Logger
	pdf      extractors.Extractor
	docx     extractors.Extractor
	markdown extractors.Extractor
	xlsx     extractors.Extractor
	text     extractors.Extractor
}

// New creates a Processor with one extractor per supported format.
func New(ch *chunker.Chunker, log *logger.Logger) *Processor {
	return &Processor{
		chunker:  ch,
		log:      log,
		pdf:      extractors.NewPdfExtractor(),
		docx:     extractors.NewDocxExtractor(),
		markdown: extractors.NewMarkdownExtractor(),
		xlsx:     extractors.NewXlsxExtractor(),
		text:     extractors.NewTextExtractor(),
	}
}

// Process extracts text from the uploaded file, assigns a fresh document ID,
// merges derived and caller-supplied metadata, and returns the document with
// its ordered chunks. Caller metadata wins on key conflicts, so a caller
// supplied "title" replaces the filename-derived one.
func (p *Processor) Process(content []byte, filename string, callerMetadata map[string]interface{}) (*schema.Document, []schema.Chunk, error) {
	ext := fileExtension(filename)

	text, err := p.extractorFor(ext).Extract(content)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract text from %q: %w", filename, err)
	}

	doc := &schema.Document{
		ID:         uuid.New().String(),
		Title:      filename,
		UploadedAt: time.Now().UTC(),
		FileType:   ext,
		Text:       text,
	}

	doc.Metadata = map[string]interface{}{
		schema.MetadataKeyTitle:      doc.Title,
		schema.MetadataKeyUploadDate: doc.UploadedAt.Format(time.RFC3339),
		schema.MetadataKeyFileType:   doc.FileType,
	}
	for k, v := range callerMetadata {
		doc.Metadata[k] = v
	}
	if t, ok := doc.Metadata[schema.MetadataKeyTitle].(string); ok {
		doc.Title = t
	}

	chunks, err := p.chunker.Chunk(text, doc.Metadata)
	if err != nil {
		return nil, nil, err
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
	}

	p.log.WithPayload(map[string]interface{}{
		"doc_id":    doc.ID,
		"file_type": doc.FileType,
		"chunks":    len(chunks),
	}).Info("Processed document")

	return doc, chunks, nil
}

// extractorFor picks the extractor for an extension. Unknown extensions fall
// back to plain-text decoding, which rejects non-UTF-8 content.
func (p *Processor) extractorFor(ext string) extractors.Extractor {
	switch ext {
	case "pdf":
		return p.pdf
	case "doc", "docx":
		return p.docx
	case "md", "markdown":
		return p.markdown
	case "xlsx":
		return p.xlsx
	case "txt", "text":
		return p.text
	default:
		return p.text
	}
}

func fileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
