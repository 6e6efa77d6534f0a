package extractors

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PdfExtractor extracts the text of every page of a PDF file.
type PdfExtractor struct{}

// NewPdfExtractor creates a new PdfExtractor.
func NewPdfExtractor() *PdfExtractor {
	return &PdfExtractor{}
}

// Extract concatenates the plain text of all pages, one page per line block.
func (e *PdfExtractor) Extract(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from pdf page %d: %w", i, err)
		}
		parts = append(parts, text)
	}

	return strings.Join(parts, "\n"), nil
}

var _ Extractor = (*PdfExtractor)(nil)
