package extractors

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"

	"agrichat/internal/rag/schema"
)

// MarkdownExtractor renders Markdown to HTML and strips the markup, keeping
// only the readable text.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

// NewMarkdownExtractor creates a new MarkdownExtractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

// Extract converts the Markdown source to plain text.
func (e *MarkdownExtractor) Extract(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: markdown content is not valid UTF-8", schema.ErrUnsupportedFormat)
	}

	var rendered bytes.Buffer
	if err := e.md.Convert(content, &rendered); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	root, err := html.Parse(&rendered)
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered markdown: %w", err)
	}

	var sb strings.Builder
	collectText(root, &sb)
	return sb.String(), nil
}

// collectText walks the HTML tree appending text nodes, with a newline after
// each block-level element so paragraphs stay separated.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "pre", "blockquote", "tr":
			sb.WriteString("\n")
		}
	}
}

var _ Extractor = (*MarkdownExtractor)(nil)
