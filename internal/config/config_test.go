package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, defaultTopK, cfg.TopK)
	assert.Equal(t, "openai", cfg.Embed.Provider)
	assert.Equal(t, defaultEmbedDim, cfg.Embed.Dim)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
database_url: postgres://localhost/docdex
chunk_size: 40
chunk_overlap: 10
top_k: 3
embed:
  provider: mock
  dim: 32
sources:
  - name: docs
    type: folder
    path: ./docs
    csv_row_mode: true
    csv_where:
      status: active
  - name: notes
    type: db
    url: postgres://localhost/notes
    table: notes
    id_column: id
    text_column: body
    alias: notes
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/docdex", cfg.DatabaseURL)
	assert.Equal(t, 40, cfg.ChunkSize)
	assert.Equal(t, 10, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, "mock", cfg.Embed.Provider)
	assert.Equal(t, 32, cfg.Embed.Dim)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "folder", cfg.Sources[0].Type)
	assert.True(t, cfg.Sources[0].CSVRowMode)
	assert.Equal(t, "active", cfg.Sources[0].CSVWhere["status"])
	assert.Equal(t, "db", cfg.Sources[1].Type)
	assert.Equal(t, "body", cfg.Sources[1].TextColumn)

	assert.NoError(t, cfg.Validate())
}

func TestBadOverlapClamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 10\nchunk_overlap: 50\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Less(t, cfg.ChunkOverlap, cfg.ChunkSize)
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
