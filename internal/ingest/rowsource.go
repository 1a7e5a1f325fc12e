package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"docdex/internal/config"
	"docdex/internal/extractor"
)

// RowSource iterates rows of an external database: either a table with id
// and text columns (plus an optional WHERE clause) or a raw query returning
// id and text. The connection is read-only from docdex's point of view.
type RowSource struct {
	db         *sql.DB
	table      string
	idColumn   string
	textColumn string
	where      string
	query      string
}

// OpenRowSource connects to the source database at url.
func OpenRowSource(url, table, idColumn, textColumn, where, query string) (*RowSource, error) {
	if strings.TrimSpace(query) == "" && (table == "" || textColumn == "") {
		return nil, fmt.Errorf("row source requires either a query or table and text_column")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open row source: %w", err)
	}
	return &RowSource{
		db:         db,
		table:      table,
		idColumn:   idColumn,
		textColumn: textColumn,
		where:      where,
		query:      query,
	}, nil
}

// Each yields every row's id and text in source order.
func (s *RowSource) Each(ctx context.Context, fn func(id, text string) error) error {
	rows, err := s.db.QueryContext(ctx, s.selectSQL())
	if err != nil {
		return fmt.Errorf("query row source: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	idIdx, textIdx := 0, len(cols)-1
	for i, c := range cols {
		if s.idColumn != "" && c == s.idColumn {
			idIdx = i
		}
		if s.textColumn != "" && c == s.textColumn {
			textIdx = i
		}
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := fn(stringify(values[idIdx]), stringify(values[textIdx])); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *RowSource) Close() error { return s.db.Close() }

func (s *RowSource) selectSQL() string {
	if strings.TrimSpace(s.query) != "" {
		return s.query
	}
	idCol := s.idColumn
	if idCol == "" {
		idCol = "id"
	}
	q := fmt.Sprintf("SELECT %s, %s FROM %s", idCol, s.textColumn, s.table)
	if strings.TrimSpace(s.where) != "" {
		q += " WHERE " + s.where
	}
	return q
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// IngestRows ingests every row of src as its own document at path
// source://alias/table-or-query/id, normalizing the raw text per format
// before hashing and chunking. Row failures are logged and skipped.
func (p *Pipeline) IngestRows(ctx context.Context, src *RowSource, alias, format string) (BatchStats, error) {
	if alias == "" {
		alias = "src"
	}
	scope := src.table
	if scope == "" {
		scope = "query"
	}
	var stats BatchStats
	err := src.Each(ctx, func(id, text string) error {
		path := fmt.Sprintf("source://%s/%s/%s", alias, scope, id)
		norm := extractor.Normalize(format, text)
		res, err := p.Ingest(ctx, path, norm, Meta{
			Size:   int64(len(norm)),
			Format: format,
		})
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("row ingestion failed")
			stats.Failed++
			return nil
		}
		stats.add(res)
		return nil
	})
	return stats, err
}

// IngestSource runs one configured source, folder or db.
func (p *Pipeline) IngestSource(ctx context.Context, sc config.SourceConfig) (BatchStats, error) {
	switch sc.Type {
	case "folder", "":
		return p.IngestFolder(ctx, sc.Path, FolderOptions{
			CSVRowMode:   sc.CSVRowMode,
			CSVDelimiter: sc.CSVDelimiter,
			CSVHeaders:   sc.CSVHeaders,
			CSVWhere:     sc.CSVWhere,
			CSVLimit:     sc.CSVLimit,
		})
	case "db":
		src, err := OpenRowSource(sc.URL, sc.Table, sc.IDColumn, sc.TextColumn, sc.Where, sc.Query)
		if err != nil {
			return BatchStats{}, err
		}
		defer src.Close()
		alias := sc.Alias
		if alias == "" {
			alias = sc.Name
		}
		return p.IngestRows(ctx, src, alias, sc.Format)
	default:
		return BatchStats{}, fmt.Errorf("unknown source type %q", sc.Type)
	}
}

// PreviewRows counts the rows the source would yield.
func PreviewRows(ctx context.Context, src *RowSource) (int, error) {
	count := 0
	err := src.Each(ctx, func(id, text string) error {
		count++
		return nil
	})
	return count, err
}
