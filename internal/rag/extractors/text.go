package extractors

import (
	"fmt"
	"unicode/utf8"

	"agrichat/internal/rag/schema"
)

// TextExtractor decodes plain UTF-8 text. It doubles as the fallback for
// unrecognized extensions, where invalid UTF-8 is the signal that the upload
// is a format we cannot handle.
type TextExtractor struct{}

// NewTextExtractor creates a new TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the content verbatim if it is valid UTF-8.
func (e *TextExtractor) Extract(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: content is not valid UTF-8 text", schema.ErrUnsupportedFormat)
	}
	return string(content), nil
}

var _ Extractor = (*TextExtractor)(nil)
