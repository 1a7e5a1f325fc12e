package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docdex/internal/chunker"
	"docdex/internal/embedding"
	"docdex/internal/storage"
)

func newTestPipeline(t *testing.T) (*Pipeline, *storage.Memory) {
	t.Helper()
	ch, err := chunker.New(5, 2)
	require.NoError(t, err)
	store := storage.NewMemory()
	return New(store, embedding.NewMock(8), ch, 4), store
}

func TestIngestInsertThenSkip(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	res, err := p.Ingest(ctx, "/docs/a.txt", "alpha beta gamma", Meta{})
	require.NoError(t, err)
	assert.Equal(t, ResultInserted, res)

	doc, err := store.DocumentByPath(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, HashText("alpha beta gamma"), doc.ContentHash)

	res, err = p.Ingest(ctx, "/docs/a.txt", "alpha beta gamma", Meta{})
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, res)
	assert.Equal(t, 1, store.ChunkCount())
}

func TestIngestChangeRegeneratesChunks(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	long := "w0 w1 w2 w3 w4 w5 w6 w7 w8 w9 w10 w11"
	_, err := p.Ingest(ctx, "/docs/a.txt", long, Meta{})
	require.NoError(t, err)
	assert.Equal(t, 4, store.ChunkCount())
	assert.Equal(t, 4, store.VectorCount())

	res, err := p.Ingest(ctx, "/docs/a.txt", "short text", Meta{})
	require.NoError(t, err)
	assert.Equal(t, ResultUpdated, res)

	chunks, err := store.DocumentChunks(ctx, "/docs/a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 1, store.VectorCount())
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding backend down")
}

func (failingEmbedder) Dim() int { return 8 }

func TestIngestEmbedFailureKeepsPriorState(t *testing.T) {
	ch, err := chunker.New(5, 2)
	require.NoError(t, err)
	store := storage.NewMemory()
	ctx := context.Background()

	p := New(store, embedding.NewMock(8), ch, 1)
	_, err = p.Ingest(ctx, "/docs/a.txt", "original body", Meta{})
	require.NoError(t, err)

	broken := New(store, failingEmbedder{}, ch, 1)
	_, err = broken.Ingest(ctx, "/docs/a.txt", "new body", Meta{})
	require.Error(t, err)

	doc, err := store.DocumentByPath(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, HashText("original body"), doc.ContentHash)
	chunks, err := store.DocumentChunks(ctx, "/docs/a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "original body", chunks[0].Text)
}

func TestBatchStats(t *testing.T) {
	var s BatchStats
	s.add(ResultInserted)
	s.add(ResultInserted)
	s.add(ResultUpdated)
	s.add(ResultSkipped)
	s.Failed++

	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 3, s.Changed())

	var total BatchStats
	total.Merge(s)
	total.Merge(s)
	assert.Equal(t, 8, total.Processed)
	assert.Equal(t, 2, total.Failed)
}
