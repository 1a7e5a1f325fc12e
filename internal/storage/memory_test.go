package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docdex/internal/chunker"
)

func testChunks(texts ...string) []chunker.Chunk {
	out := make([]chunker.Chunk, len(texts))
	cursor := 0
	for i, txt := range texts {
		out[i] = chunker.Chunk{Position: i, StartOffset: cursor, EndOffset: cursor + len(txt), Text: txt}
		cursor += len(txt)
	}
	return out
}

func TestMemoryReplaceDocument(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	doc := &Document{Path: "/docs/a.txt", Size: 10, Mtime: time.Now(), ContentHash: "h1", Format: ".txt"}
	err := m.ReplaceDocument(ctx, doc, testChunks("alpha beta", "gamma"), [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.ChunkCount())
	assert.Equal(t, 2, m.VectorCount())

	got, err := m.DocumentByPath(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.ContentHash)

	// Rewrite with different content: no residue from the first chunk set.
	doc2 := &Document{Path: "/docs/a.txt", Size: 5, Mtime: time.Now(), ContentHash: "h2", Format: ".txt"}
	err = m.ReplaceDocument(ctx, doc2, testChunks("delta"), [][]float32{{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, doc2.ID, "same path keeps its document identity")
	assert.Equal(t, 1, m.ChunkCount())
	assert.Equal(t, 1, m.VectorCount())

	chunks, err := m.DocumentChunks(ctx, "/docs/a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "delta", chunks[0].Text)
}

func TestMemoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	doc := &Document{Path: "/docs/b.txt", ContentHash: "h", Format: ".txt", Mtime: time.Now()}
	require.NoError(t, m.ReplaceDocument(ctx, doc, testChunks("one", "two"), [][]float32{{1}, {2}}))

	require.NoError(t, m.DeleteDocument(ctx, "/docs/b.txt"))
	assert.Equal(t, 0, m.ChunkCount())
	assert.Equal(t, 0, m.VectorCount())

	_, err := m.DocumentByPath(ctx, "/docs/b.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	err = m.DeleteDocument(ctx, "/docs/b.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKeywordSearch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	doc := &Document{Path: "/docs/c.txt", ContentHash: "h", Format: ".txt", Mtime: time.Now()}
	chunks := testChunks("the cat sat on the mat", "dogs chase the ball", "cat and dog together")
	require.NoError(t, m.ReplaceDocument(ctx, doc, chunks, nil))

	results, err := m.KeywordSearch(ctx, "cat", "rank", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// AND of terms: both must be present.
	results, err = m.KeywordSearch(ctx, "cat dog", "rank", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Position)

	results, err = m.KeywordSearch(ctx, "", "rank", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryVectorSearchExcludesVectorless(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	doc := &Document{Path: "/docs/d.txt", ContentHash: "h", Format: ".txt", Mtime: time.Now()}
	// Second chunk has no embedding: lexical-only.
	require.NoError(t, m.ReplaceDocument(ctx, doc, testChunks("aaa", "bbb"), [][]float32{{1, 0}}))

	results, err := m.VectorSearch(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Position)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	// Hybrid join also skips the vectorless chunk even though it matches
	// lexically.
	hybrid, err := m.HybridSearch(ctx, []float32{1, 0}, "bbb", "rank", 0.0, 10)
	require.NoError(t, err)
	require.Len(t, hybrid, 1)
	assert.Equal(t, 0, hybrid[0].Position)

	keyword, err := m.KeywordSearch(ctx, "bbb", "rank", 10)
	require.NoError(t, err)
	require.Len(t, keyword, 1, "vectorless chunk still visible in keyword mode")
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[1,0.5,-2]", VectorLiteral([]float32{1, 0.5, -2}))
	assert.Equal(t, "[]", VectorLiteral(nil))
}
