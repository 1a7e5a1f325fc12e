package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"docdex/internal/extractor"
)

// FolderOptions controls folder ingestion. The CSV fields only matter for
// files in CSV row mode, where every row becomes a pseudo-document at
// path#row=N. Row filters and the row limit apply before ingestion so
// preview and ingest counts agree.
type FolderOptions struct {
	CSVRowMode   bool
	CSVDelimiter string
	CSVHeaders   string
	CSVWhere     map[string]string
	CSVLimit     int
}

func (o FolderOptions) csvOptions() extractor.CSVOptions {
	delim := ','
	if o.CSVDelimiter != "" {
		delim, _ = utf8.DecodeRuneInString(o.CSVDelimiter)
	}
	headers := o.CSVHeaders
	if headers == "" {
		headers = "auto"
	}
	return extractor.CSVOptions{Delimiter: delim, Headers: headers}
}

// IngestFolder ingests every supported file under root, fanning documents
// out over a bounded worker pool. Extraction or transport failures are
// logged, counted, and skipped.
func (p *Pipeline) IngestFolder(ctx context.Context, root string, opts FolderOptions) (BatchStats, error) {
	files, err := listSupportedFiles(root)
	if err != nil {
		return BatchStats{}, err
	}

	var (
		stats BatchStats
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	jobs := make(chan string)
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				fileStats := p.ingestFile(ctx, path, opts)
				mu.Lock()
				stats.Merge(fileStats)
				mu.Unlock()
			}
		}()
	}
	for _, path := range files {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	return stats, nil
}

// Sync re-indexes a folder: only strictly new or changed files cause writes.
func (p *Pipeline) Sync(ctx context.Context, root string) (BatchStats, error) {
	return p.IngestFolder(ctx, root, FolderOptions{})
}

// Prune deletes every catalog document under root whose path no longer
// exists on disk. CSV row pseudo-documents count as live while their base
// file exists; documents outside root (other folders, source:// rows) are
// not considered.
func (p *Pipeline) Prune(ctx context.Context, root string) (int, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return 0, err
	}
	live := make(map[string]bool)
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			live[path] = true
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	paths, err := p.store.ListPaths(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, path := range paths {
		base := path
		if i := strings.Index(base, "#row="); i >= 0 {
			base = base[:i]
		}
		if base != rootAbs && !strings.HasPrefix(base, rootAbs+string(os.PathSeparator)) {
			continue
		}
		if live[base] {
			continue
		}
		if err := p.store.DeleteDocument(ctx, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("prune failed")
			continue
		}
		pruned++
	}
	return pruned, nil
}

// PreviewFolder counts what ingestion would process, applying the same CSV
// row filters and limit as IngestFolder.
func (p *Pipeline) PreviewFolder(root string, opts FolderOptions) (int, error) {
	files, err := listSupportedFiles(root)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, path := range files {
		if opts.CSVRowMode && extractor.IsCSV(path) {
			_, rows, err := selectCSVRows(path, opts)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("preview: unreadable csv")
				continue
			}
			total += len(rows)
			continue
		}
		total++
	}
	return total, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, path string, opts FolderOptions) BatchStats {
	var stats BatchStats
	if opts.CSVRowMode && extractor.IsCSV(path) {
		return p.ingestCSVRows(ctx, path, opts)
	}

	stat, err := os.Stat(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("stat failed")
		stats.Failed++
		return stats
	}
	text, err := extractor.Extract(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("extraction failed")
		stats.Failed++
		return stats
	}
	res, err := p.Ingest(ctx, path, text, Meta{
		Size:   stat.Size(),
		Mtime:  stat.ModTime(),
		Format: strings.ToLower(filepath.Ext(path)),
	})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("ingestion failed")
		stats.Failed++
		return stats
	}
	stats.add(res)
	return stats
}

func (p *Pipeline) ingestCSVRows(ctx context.Context, path string, opts FolderOptions) BatchStats {
	var stats BatchStats
	stat, err := os.Stat(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("stat failed")
		stats.Failed++
		return stats
	}
	headers, rows, err := selectCSVRows(path, opts)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("csv read failed")
		stats.Failed++
		return stats
	}
	for i, row := range rows {
		text := extractor.CSVRowText(headers, row)
		rowPath := fmt.Sprintf("%s#row=%d", path, i+1)
		res, err := p.Ingest(ctx, rowPath, text, Meta{
			Size:   int64(len(text)),
			Mtime:  stat.ModTime(),
			Format: "csv-row",
		})
		if err != nil {
			log.Error().Err(err).Str("path", rowPath).Msg("row ingestion failed")
			stats.Failed++
			continue
		}
		stats.add(res)
	}
	return stats
}

// selectCSVRows reads a CSV file and applies row filters and the row limit.
// Both preview and ingestion go through here so their counts stay consistent.
func selectCSVRows(path string, opts FolderOptions) ([]string, [][]string, error) {
	headers, rows, err := extractor.ReadCSVRows(path, opts.csvOptions())
	if err != nil {
		return nil, nil, err
	}
	if len(opts.CSVWhere) > 0 {
		filtered := rows[:0]
		for _, row := range rows {
			if extractor.MatchCSVRow(opts.CSVWhere, headers, row) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	if opts.CSVLimit > 0 && len(rows) > opts.CSVLimit {
		rows = rows[:opts.CSVLimit]
	}
	return headers, rows, nil
}

func listSupportedFiles(root string) ([]string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && extractor.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}
