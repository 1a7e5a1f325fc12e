// Package search is the read-only retrieval engine: it embeds the query,
// dispatches to the catalog's vector, keyword or hybrid ranking, and applies
// the optional path filter.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"docdex/internal/embedding"
	"docdex/internal/storage"
)

const (
	ModeVector  = "vector"
	ModeKeyword = "keyword"
	ModeHybrid  = "hybrid"
)

// Options shape one query. Zero values fall back to safe defaults: mode
// vector, top_k 8, rank function "rank", alpha clamped into [0, 1].
type Options struct {
	TopK       int
	Mode       string
	Alpha      float64
	RankFn     string
	PathPrefix string
}

func (o *Options) normalize() error {
	if o.TopK <= 0 {
		o.TopK = 8
	}
	if o.Mode == "" {
		o.Mode = ModeVector
	}
	switch o.Mode {
	case ModeVector, ModeKeyword, ModeHybrid:
	default:
		return fmt.Errorf("unknown search mode %q", o.Mode)
	}
	switch o.RankFn {
	case "rank", "rank_cd":
	default:
		o.RankFn = "rank"
	}
	if o.Alpha < 0 {
		o.Alpha = 0
	}
	if o.Alpha > 1 {
		o.Alpha = 1
	}
	return nil
}

type Engine struct {
	store    storage.Catalog
	embedder embedding.Provider
}

func NewEngine(store storage.Catalog, embedder embedding.Provider) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Query runs one retrieval pass. Keyword mode needs no query embedding;
// vector and hybrid modes embed the query text first. The path prefix is
// applied after top_k truncation, so filtered result sets may come back
// shorter than top_k.
func (e *Engine) Query(ctx context.Context, query string, opts Options) ([]storage.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	var embedded []float32
	if opts.Mode != ModeKeyword {
		vecs, err := e.embedder.EmbedTexts(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		embedded = vecs[0]
	}

	var (
		results []storage.SearchResult
		err     error
	)
	switch opts.Mode {
	case ModeVector:
		results, err = e.store.VectorSearch(ctx, embedded, opts.TopK)
	case ModeKeyword:
		results, err = e.store.KeywordSearch(ctx, query, opts.RankFn, opts.TopK)
	case ModeHybrid:
		results, err = e.store.HybridSearch(ctx, embedded, query, opts.RankFn, opts.Alpha, opts.TopK)
	}
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", opts.Mode, err)
	}

	if opts.PathPrefix != "" {
		filtered := results[:0]
		for _, r := range results {
			if strings.HasPrefix(r.DocumentPath, opts.PathPrefix) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	e.recordQuery(ctx, query, embedded, opts, results)
	return results, nil
}

// recordQuery appends the audit row. Auditing never fails a query.
func (e *Engine) recordQuery(ctx context.Context, query string, embedded []float32, opts Options, results []storage.SearchResult) {
	rec := &storage.QueryRecord{
		QueryText: query,
		Filters: map[string]any{
			"mode":        opts.Mode,
			"top_k":       opts.TopK,
			"alpha":       opts.Alpha,
			"rank_fn":     opts.RankFn,
			"path_prefix": opts.PathPrefix,
		},
	}
	if embedded != nil {
		rec.Embedding = storage.VectorLiteral(embedded)
	}
	rec.Results = make([]any, 0, len(results))
	for _, r := range results {
		rec.Results = append(rec.Results, map[string]any{
			"chunk_id": r.ChunkID,
			"path":     r.DocumentPath,
			"score":    r.Score,
		})
	}
	if err := e.store.SaveQuery(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("query audit write failed")
	}
}

// Reconstruct reassembles a document's normalized text from its ordered
// chunks. Overlapping windows are joined as-is, so the output is the chunk
// sequence, not a byte-exact copy of the source file.
func (e *Engine) Reconstruct(ctx context.Context, path string) (string, error) {
	chunks, err := e.store.DocumentChunks(ctx, path)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Text
	}
	return strings.Join(parts, "\n\n"), nil
}
