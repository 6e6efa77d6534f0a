package extractors

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/v2/document"
)

// DocxExtractor extracts paragraph text from Word (.docx) files.
type DocxExtractor struct{}

// NewDocxExtractor creates a new DocxExtractor.
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

// Extract joins the text of every paragraph run with newlines.
func (e *DocxExtractor) Extract(content []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

var _ Extractor = (*DocxExtractor)(nil)
