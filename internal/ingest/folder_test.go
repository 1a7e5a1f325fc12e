package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFolderAndSync(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, dir, "a.txt", "first document body")
	writeFile(t, dir, "b.md", "# Heading\n\nsecond document body")
	writeFile(t, dir, "ignore.bin", "binary junk")

	stats, err := p.IngestFolder(ctx, dir, FolderOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 0, stats.Failed)

	// Unchanged files are skipped, a touched file is updated.
	writeFile(t, dir, "a.txt", "first document body, revised")
	stats, err = p.Sync(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Changed())

	paths, err := store.ListPaths(ctx)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestPruneRemovesDeletedFiles(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	a := writeFile(t, dir, "a.txt", "kept")
	b := writeFile(t, dir, "b.txt", "doomed")
	_, err := p.IngestFolder(ctx, dir, FolderOptions{})
	require.NoError(t, err)

	// A document from another tree must survive pruning this one.
	_, err = p.Ingest(ctx, "/elsewhere/c.txt", "outside the root", Meta{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(b))
	pruned, err := p.Prune(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	paths, err := store.ListPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, "/elsewhere/c.txt"}, paths)
}

func TestPruneKeepsCSVRowsWhileBaseExists(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	csv := writeFile(t, dir, "people.csv", "name,city\nada,london\ngrace,new york\n")
	stats, err := p.IngestFolder(ctx, dir, FolderOptions{CSVRowMode: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)

	pruned, err := p.Prune(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	require.NoError(t, os.Remove(csv))
	pruned, err = p.Prune(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	paths, err := store.ListPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestCSVRowModeFiltersAndLimit(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	var rows string
	for i := 1; i <= 6; i++ {
		status := "open"
		if i%2 == 0 {
			status = "closed"
		}
		rows += fmt.Sprintf("ticket %d,%s\n", i, status)
	}
	csv := writeFile(t, dir, "tickets.csv", "title,status\n"+rows)

	opts := FolderOptions{
		CSVRowMode: true,
		CSVWhere:   map[string]string{"status": "open"},
		CSVLimit:   2,
	}
	preview, err := p.PreviewFolder(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, preview)

	stats, err := p.IngestFolder(ctx, dir, opts)
	require.NoError(t, err)
	assert.Equal(t, preview, stats.Processed)
	assert.Equal(t, 2, stats.Inserted)

	paths, err := store.ListPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{csv + "#row=1", csv + "#row=2"}, paths)

	chunks, err := store.DocumentChunks(ctx, csv+"#row=1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "title: ticket 1")
	assert.Contains(t, chunks[0].Text, "status: open")
}

func TestCSVOptionsMultiByteDelimiter(t *testing.T) {
	opts := FolderOptions{CSVDelimiter: "→"}
	assert.Equal(t, '→', opts.csvOptions().Delimiter)

	opts = FolderOptions{CSVDelimiter: ";"}
	assert.Equal(t, ';', opts.csvOptions().Delimiter)

	assert.Equal(t, ',', FolderOptions{}.csvOptions().Delimiter)
}

func TestPreviewFolderCountsFilesAndRows(t *testing.T) {
	p, _ := newTestPipeline(t)
	dir := t.TempDir()

	writeFile(t, dir, "a.txt", "plain file")
	writeFile(t, dir, "data.csv", "k,v\nx,1\ny,2\nz,3\n")

	preview, err := p.PreviewFolder(dir, FolderOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, preview)

	preview, err = p.PreviewFolder(dir, FolderOptions{CSVRowMode: true})
	require.NoError(t, err)
	assert.Equal(t, 4, preview)
}
