// Package ingest orchestrates change detection, chunking, embedding and
// catalog mutation for folder, CSV-row and external database sources.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"docdex/internal/chunker"
	"docdex/internal/embedding"
	"docdex/internal/storage"
)

// Result classifies what one ingestion did to the catalog.
type Result string

const (
	ResultInserted Result = "inserted"
	ResultUpdated  Result = "updated"
	ResultSkipped  Result = "skipped"
)

// Meta carries source attributes stored on the document row.
type Meta struct {
	Size   int64
	Mtime  time.Time
	Format string
	Extra  map[string]any
}

// Pipeline is the only writer of the catalog. Documents are independent, so
// different paths may be ingested concurrently; ingestions of the same path
// serialize on a per-path mutex so chunk deletion and insertion never
// interleave.
type Pipeline struct {
	store    storage.Catalog
	embedder embedding.Provider
	chunks   *chunker.Chunker
	workers  int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store storage.Catalog, embedder embedding.Provider, ch *chunker.Chunker, workers int) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		store:    store,
		embedder: embedder,
		chunks:   ch,
		workers:  workers,
		locks:    make(map[string]*sync.Mutex),
	}
}

// HashText is the content digest used as the sole change signal.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Ingest runs the hash diff for one document. Unchanged content is a no-op
// (skipped). Otherwise the document row is upserted and its chunks are fully
// regenerated: chunk, batch-embed, and replace in one catalog transaction, so
// a failed embedding call leaves the prior document state untouched.
func (p *Pipeline) Ingest(ctx context.Context, path, text string, meta Meta) (Result, error) {
	unlock := p.lockPath(path)
	defer unlock()

	hash := HashText(text)
	existing, err := p.store.DocumentByPath(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("lookup %s: %w", path, err)
	}
	if existing != nil && existing.ContentHash == hash {
		return ResultSkipped, nil
	}

	chunks := p.chunks.Chunk(text)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("embed %s: %w", path, err)
	}

	if meta.Mtime.IsZero() {
		meta.Mtime = time.Now()
	}
	if meta.Size == 0 {
		meta.Size = int64(len(text))
	}
	doc := &storage.Document{
		Path:        path,
		Size:        meta.Size,
		Mtime:       meta.Mtime,
		ContentHash: hash,
		Format:      meta.Format,
		Metadata:    meta.Extra,
	}
	if existing != nil {
		doc.ID = existing.ID
	}
	if err := p.store.ReplaceDocument(ctx, doc, chunks, embeddings); err != nil {
		return "", fmt.Errorf("replace %s: %w", path, err)
	}
	if existing != nil {
		return ResultUpdated, nil
	}
	return ResultInserted, nil
}

func (p *Pipeline) lockPath(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &sync.Mutex{}
		p.locks[path] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// BatchStats summarizes a batch run. One document's failure never aborts the
// batch; it is counted and the batch continues.
type BatchStats struct {
	Processed int
	Inserted  int
	Updated   int
	Skipped   int
	Failed    int
}

// Changed is the number of documents that caused writes.
func (s BatchStats) Changed() int { return s.Inserted + s.Updated }

func (s *BatchStats) add(res Result) {
	s.Processed++
	switch res {
	case ResultInserted:
		s.Inserted++
	case ResultUpdated:
		s.Updated++
	case ResultSkipped:
		s.Skipped++
	}
}

func (s *BatchStats) Merge(other BatchStats) {
	s.Processed += other.Processed
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}
