// Package chunker splits extracted document text into overlapping windows,
// preferring sentence or line boundaries over raw cuts.
package chunker

import (
	"fmt"
	"strings"

	"agrichat/internal/rag/schema"
)

// Chunker cuts text into windows of Size runes overlapping by Overlap runes.
// Offsets recorded on the produced chunks are byte offsets into the source
// text; cutting happens on rune boundaries so multi-byte characters are never
// split.
type Chunker struct {
	Size    int
	Overlap int
}

// New validates the window configuration. Overlap must be strictly smaller
// than the size, otherwise the window loop could not advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", schema.ErrInvalidConfiguration, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", schema.ErrInvalidConfiguration, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)", schema.ErrInvalidConfiguration, overlap, size)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// Chunk splits text into ordered chunks carrying the given document metadata.
// Each window ends at the last sentence terminator or line break found past
// the midpoint of the window; when no such break exists, or taking it would
// stall the window, the raw cut is kept so tiny chunks cannot accumulate. A window that reaches the end of the text
// is the final chunk, so any text shorter than the window size yields exactly
// one chunk. Empty text yields no chunks.
func (c *Chunker) Chunk(text string, metadata map[string]interface{}) ([]schema.Chunk, error) {
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	byteOff := byteOffsets(text, len(runes))
	n := len(runes)

	var chunks []schema.Chunk
	start := 0
	for start < n {
		end := start + c.Size
		if end >= n {
			chunks = append(chunks, c.newChunk(runes, byteOff, start, n, len(chunks), metadata))
			break
		}

		// A break is accepted only when the window after it still moves
		// forward; otherwise a large overlap could walk the start backwards.
		if bp := lastBreak(runes[start:end]); bp > c.Size/2 {
			if cut := start + bp + 1; cut-c.Overlap > start {
				end = cut
			}
		}
		chunks = append(chunks, c.newChunk(runes, byteOff, start, end, len(chunks), metadata))
		start = end - c.Overlap
	}

	return chunks, nil
}

func (c *Chunker) newChunk(runes []rune, byteOff []int, start, end, index int, metadata map[string]interface{}) schema.Chunk {
	return schema.Chunk{
		Index:    index,
		Text:     strings.TrimSpace(string(runes[start:end])),
		Start:    byteOff[start],
		End:      byteOff[end],
		Metadata: copyMetadata(metadata),
	}
}

// lastBreak returns the rune index of the last sentence terminator or line
// break in window, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '\n':
			return i
		}
	}
	return -1
}

// byteOffsets maps rune index i to the byte offset of that rune in text, with
// one extra entry for the end of the text.
func byteOffsets(text string, runeCount int) []int {
	offsets := make([]int, 0, runeCount+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

func copyMetadata(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
