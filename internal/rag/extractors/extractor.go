// Package extractors converts uploaded file bytes of various formats into
// plain text. Extractors are pure CPU-bound parsers; none of them performs
// network calls.
package extractors

// Extractor turns the raw bytes of one file format into plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}
