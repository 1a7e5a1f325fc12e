// Package storage owns the persistent entity model: documents, their chunks,
// and the chunk vectors, plus the query and chat audit trails. The ingestion
// pipeline is the only writer; retrieval is read-only.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"docdex/internal/chunker"
)

// ErrNotFound is returned when a document path is not present in the catalog.
var ErrNotFound = errors.New("document not found")

// Document is one ingested unit: a file, one row of an external source, or
// one CSV row treated as a pseudo-document. Path is the globally unique
// identifier; ContentHash is the sole change signal.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID          int64          `bun:"id,pk,autoincrement"`
	Path        string         `bun:"path,notnull"`
	Size        int64          `bun:"size,notnull"`
	Mtime       time.Time      `bun:"mtime,notnull"`
	ContentHash string         `bun:"content_hash,notnull"`
	Format      string         `bun:"format,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Chunk is a contiguous slice of a document's normalized text.
// (DocumentID, Position) is unique; positions are dense and gapless.
type Chunk struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID          int64     `bun:"id,pk,autoincrement"`
	DocumentID  int64     `bun:"document_id,notnull"`
	Position    int       `bun:"position,notnull"`
	StartOffset int       `bun:"start_offset,notnull"`
	EndOffset   int       `bun:"end_offset,notnull"`
	Text        string    `bun:"text,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Vector is the embedding of exactly one chunk. The embedding column is a
// pgvector literal; one vector per chunk, destroyed with its chunk.
type Vector struct {
	bun.BaseModel `bun:"table:vectors,alias:v"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ChunkID   int64     `bun:"chunk_id,notnull"`
	Embedding string    `bun:"embedding"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// QueryRecord captures one executed query for later analysis. Append-only.
type QueryRecord struct {
	bun.BaseModel `bun:"table:queries,alias:q"`

	ID        int64          `bun:"id,pk,autoincrement"`
	QueryText string         `bun:"query_text,notnull"`
	Embedding string         `bun:"embedding"`
	Filters   map[string]any `bun:"filters,type:jsonb"`
	Results   []any          `bun:"results,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// ChatMessage is one turn of the retrieval-augmented chat loop.
type ChatMessage struct {
	bun.BaseModel `bun:"table:chat_messages,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Role      string    `bun:"role,notnull"`
	Content   string    `bun:"content,notnull"`
	Turn      int       `bun:"turn,notnull"`
	Context   []any     `bun:"context,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// SearchResult is one ranked candidate row returned by the retrieval engine.
// VectorScore and LexicalScore carry the individual signals where the mode
// computes them; RerankScore is filled in by a reranking pass.
type SearchResult struct {
	ChunkID      int64   `bun:"chunk_id" json:"chunk_id"`
	DocumentPath string  `bun:"document_path" json:"path"`
	Position     int     `bun:"position" json:"position"`
	Text         string  `bun:"text" json:"text"`
	Score        float64 `bun:"score" json:"score"`
	VectorScore  float64 `bun:"vector_score" json:"vector_score,omitempty"`
	LexicalScore float64 `bun:"lexical_score" json:"lexical_score,omitempty"`
	RerankScore  float64 `bun:"-" json:"rerank_score,omitempty"`
}

// Catalog is the persistence boundary for documents, chunks and vectors.
// ReplaceDocument is the only mutating entry point used by ingestion and must
// apply the whole document rewrite atomically: upsert the document row,
// delete prior chunks (cascading to vectors), insert the new chunks and
// their vectors. Embeddings are positionally aligned with chunks; a shorter
// embeddings slice leaves the trailing chunks lexical-only.
type Catalog interface {
	Init(ctx context.Context) error
	DocumentByPath(ctx context.Context, path string) (*Document, error)
	ReplaceDocument(ctx context.Context, doc *Document, chunks []chunker.Chunk, embeddings [][]float32) error
	DeleteDocument(ctx context.Context, path string) error
	ListPaths(ctx context.Context) ([]string, error)
	DocumentChunks(ctx context.Context, path string) ([]Chunk, error)

	VectorSearch(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)
	KeywordSearch(ctx context.Context, query, rankFn string, topK int) ([]SearchResult, error)
	HybridSearch(ctx context.Context, embedding []float32, query, rankFn string, alpha float64, topK int) ([]SearchResult, error)

	SaveQuery(ctx context.Context, rec *QueryRecord) error
	SaveChatMessage(ctx context.Context, msg *ChatMessage) error
	Close() error
}
