package processor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrichat/internal/rag/chunker"
	"agrichat/internal/rag/schema"
	"agrichat/pkg/logger"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	ch, err := chunker.New(1000, 200)
	require.NoError(t, err)
	return New(ch, logger.New("test"))
}

func TestProcess_PlainText(t *testing.T) {
	p := newTestProcessor(t)

	doc, chunks, err := p.Process([]byte("Wheat thrives in loamy soil."), "soil.txt", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "soil.txt", doc.Title)
	assert.Equal(t, "txt", doc.FileType)
	assert.False(t, doc.UploadedAt.IsZero())
	assert.Equal(t, "soil.txt", doc.Metadata[schema.MetadataKeyTitle])
	assert.NotEmpty(t, doc.Metadata[schema.MetadataKeyUploadDate])

	require.Len(t, chunks, 1)
	assert.Equal(t, doc.ID, chunks[0].DocumentID)
	assert.Equal(t, "Wheat thrives in loamy soil.", chunks[0].Text)
}

func TestProcess_MarkdownStripsMarkup(t *testing.T) {
	p := newTestProcessor(t)

	md := "# Fertilizers\n\nUse *nitrogen* for [wheat](https://example.com/wheat).\n"
	doc, chunks, err := p.Process([]byte(md), "guide.md", nil)
	require.NoError(t, err)

	assert.Equal(t, "md", doc.FileType)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "Fertilizers")
	assert.Contains(t, chunks[0].Text, "nitrogen")
	assert.Contains(t, chunks[0].Text, "wheat")
	assert.NotContains(t, chunks[0].Text, "#")
	assert.NotContains(t, chunks[0].Text, "*")
	assert.NotContains(t, chunks[0].Text, "https://example.com/wheat")
}

func TestProcess_UnknownExtensionFallsBackToText(t *testing.T) {
	p := newTestProcessor(t)

	doc, chunks, err := p.Process([]byte("plain content"), "notes.log", nil)
	require.NoError(t, err)
	assert.Equal(t, "log", doc.FileType)
	require.Len(t, chunks, 1)
}

func TestProcess_UnknownBinaryIsUnsupported(t *testing.T) {
	p := newTestProcessor(t)

	_, _, err := p.Process([]byte{0xff, 0xfe, 0x00, 0x80}, "image.bin", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrUnsupportedFormat))
}

func TestProcess_CallerMetadataOverridesDerived(t *testing.T) {
	p := newTestProcessor(t)

	md := map[string]interface{}{
		"title": "Custom Title",
		"url":   "https://example.com/doc",
	}
	doc, chunks, err := p.Process([]byte("content"), "original.txt", md)
	require.NoError(t, err)

	assert.Equal(t, "Custom Title", doc.Title)
	assert.Equal(t, "Custom Title", doc.Metadata[schema.MetadataKeyTitle])
	assert.Equal(t, "https://example.com/doc", doc.Metadata[schema.MetadataKeyURL])
	require.Len(t, chunks, 1)
	assert.Equal(t, "Custom Title", chunks[0].Metadata[schema.MetadataKeyTitle])
}

func TestProcess_EmptyFileYieldsNoChunks(t *testing.T) {
	p := newTestProcessor(t)

	doc, chunks, err := p.Process(nil, "empty.txt", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Empty(t, chunks)
}

func TestProcess_LongDocumentChunkIndexesAreSequential(t *testing.T) {
	p := newTestProcessor(t)

	text := strings.Repeat("Crop rotation preserves soil nutrients across seasons. ", 100)
	doc, chunks, err := p.Process([]byte(text), "rotation.txt", nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, doc.ID, ch.DocumentID)
	}
}
