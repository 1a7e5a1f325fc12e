package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docdex/internal/chunker"
)

// Postgres is the production catalog: documents/chunks/vectors in Postgres
// with a pgvector cosine index and a tsvector lexical index over chunk text.
type Postgres struct {
	db  *bun.DB
	dim int
}

// Connect opens a Postgres connection for the given URL.
func Connect(databaseURL string) (*sql.DB, error) {
	dsn := databaseURL
	if !strings.Contains(dsn, "sslmode=") {
		if strings.Contains(dsn, "?") {
			dsn += "&sslmode=disable"
		} else {
			dsn += "?sslmode=disable"
		}
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
}

// NewPostgres wraps an open connection in a bun DB. dim is the fixed
// embedding dimension used for the vector columns.
func NewPostgres(sqldb *sql.DB, dim int, debug bool) *Postgres {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Postgres{db: db, dim: dim}
}

// Init creates the schema: core tables, the ivfflat cosine index over
// vectors, and a GIN index over the generated tsvector column.
func (s *Postgres) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			size BIGINT NOT NULL,
			mtime TIMESTAMPTZ NOT NULL,
			content_hash TEXT NOT NULL,
			format TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS documents_content_hash_idx ON documents (content_hash)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			position INT NOT NULL,
			start_offset INT NOT NULL,
			end_offset INT NOT NULL,
			text TEXT NOT NULL,
			text_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', text)) STORED,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (document_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_text_tsv_idx ON chunks USING GIN (text_tsv)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vectors (
			id BIGSERIAL PRIMARY KEY,
			chunk_id BIGINT NOT NULL UNIQUE REFERENCES chunks(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS vectors_embedding_idx ON vectors USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS queries (
			id BIGSERIAL PRIMARY KEY,
			query_text TEXT NOT NULL,
			embedding vector(%d),
			filters JSONB NOT NULL DEFAULT '{}',
			results JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.dim),
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			turn INT NOT NULL,
			context JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Postgres) DocumentByPath(ctx context.Context, path string) (*Document, error) {
	doc := new(Document)
	err := s.db.NewSelect().Model(doc).Where("path = ?", path).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ReplaceDocument upserts the document row, drops its prior chunks (vectors
// cascade) and inserts the regenerated chunks with their embeddings, all in
// one transaction. Concurrent rewrites of the same path serialize on the
// unique path upsert.
func (s *Postgres) ReplaceDocument(ctx context.Context, doc *Document, chunks []chunker.Chunk, embeddings [][]float32) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		doc.UpdatedAt = time.Now()
		_, err := tx.NewInsert().Model(doc).
			On("CONFLICT (path) DO UPDATE").
			Set("size = EXCLUDED.size").
			Set("mtime = EXCLUDED.mtime").
			Set("content_hash = EXCLUDED.content_hash").
			Set("format = EXCLUDED.format").
			Set("metadata = EXCLUDED.metadata").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.Path, err)
		}
		if _, err := tx.NewDelete().Model((*Chunk)(nil)).Where("document_id = ?", doc.ID).Exec(ctx); err != nil {
			return fmt.Errorf("delete stale chunks for %s: %w", doc.Path, err)
		}
		if len(chunks) == 0 {
			return nil
		}
		rows := make([]Chunk, len(chunks))
		for i, ch := range chunks {
			rows[i] = Chunk{
				DocumentID:  doc.ID,
				Position:    ch.Position,
				StartOffset: ch.StartOffset,
				EndOffset:   ch.EndOffset,
				Text:        ch.Text,
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert chunks for %s: %w", doc.Path, err)
		}
		var vecs []Vector
		for i, emb := range embeddings {
			if i >= len(rows) {
				break
			}
			vecs = append(vecs, Vector{ChunkID: rows[i].ID, Embedding: VectorLiteral(emb)})
		}
		if len(vecs) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&vecs).Exec(ctx); err != nil {
			return fmt.Errorf("insert vectors for %s: %w", doc.Path, err)
		}
		return nil
	})
}

func (s *Postgres) DeleteDocument(ctx context.Context, path string) error {
	res, err := s.db.NewDelete().Model((*Document)(nil)).Where("path = ?", path).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.db.NewSelect().Model((*Document)(nil)).Column("path").Order("path").Scan(ctx, &paths)
	return paths, err
}

func (s *Postgres) DocumentChunks(ctx context.Context, path string) ([]Chunk, error) {
	doc, err := s.DocumentByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	err = s.db.NewSelect().Model(&chunks).
		Where("document_id = ?", doc.ID).
		Order("position").
		Scan(ctx)
	return chunks, err
}

func (s *Postgres) VectorSearch(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	lit := VectorLiteral(embedding)
	var results []SearchResult
	err := s.db.NewRaw(`
		SELECT c.id AS chunk_id, d.path AS document_path, c.position, c.text,
		       1 - (v.embedding <=> ?::vector) AS score,
		       1 - (v.embedding <=> ?::vector) AS vector_score,
		       0::float8 AS lexical_score
		FROM vectors v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		ORDER BY v.embedding <=> ?::vector
		LIMIT ?`, lit, lit, lit, topK).Scan(ctx, &results)
	return results, err
}

func (s *Postgres) KeywordSearch(ctx context.Context, query, rankFn string, topK int) ([]SearchResult, error) {
	fn := tsRankFunction(rankFn)
	var results []SearchResult
	err := s.db.NewRaw(fmt.Sprintf(`
		SELECT c.id AS chunk_id, d.path AS document_path, c.position, c.text,
		       %[1]s(c.text_tsv, plainto_tsquery('english', ?)) AS score,
		       0::float8 AS vector_score,
		       %[1]s(c.text_tsv, plainto_tsquery('english', ?)) AS lexical_score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.text_tsv @@ plainto_tsquery('english', ?)
		ORDER BY score DESC
		LIMIT ?`, fn), query, query, query, topK).Scan(ctx, &results)
	return results, err
}

// HybridSearch blends both signals over the join of the vector and lexical
// indexes. Chunks without a vector are not visible here even though they
// exist lexically; alpha is assumed to be clamped by the caller.
func (s *Postgres) HybridSearch(ctx context.Context, embedding []float32, query, rankFn string, alpha float64, topK int) ([]SearchResult, error) {
	fn := tsRankFunction(rankFn)
	lit := VectorLiteral(embedding)
	var results []SearchResult
	err := s.db.NewRaw(fmt.Sprintf(`
		SELECT c.id AS chunk_id, d.path AS document_path, c.position, c.text,
		       (? * (1 - (v.embedding <=> ?::vector)) + ? * %[1]s(c.text_tsv, plainto_tsquery('english', ?))) AS score,
		       1 - (v.embedding <=> ?::vector) AS vector_score,
		       %[1]s(c.text_tsv, plainto_tsquery('english', ?)) AS lexical_score
		FROM vectors v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		ORDER BY score DESC
		LIMIT ?`, fn), alpha, lit, 1-alpha, query, lit, query, topK).Scan(ctx, &results)
	return results, err
}

func (s *Postgres) SaveQuery(ctx context.Context, rec *QueryRecord) error {
	_, err := s.db.NewInsert().Model(rec).Exec(ctx)
	return err
}

func (s *Postgres) SaveChatMessage(ctx context.Context, msg *ChatMessage) error {
	_, err := s.db.NewInsert().Model(msg).Exec(ctx)
	return err
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

// tsRankFunction maps a rank function name to a full-text ranking function.
// Anything unrecognized falls back to ts_rank; the name is interpolated into
// SQL so only allowlisted values pass through.
func tsRankFunction(name string) string {
	if name == "rank_cd" {
		return "ts_rank_cd"
	}
	return "ts_rank"
}

// VectorLiteral renders an embedding as a pgvector input literal.
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
