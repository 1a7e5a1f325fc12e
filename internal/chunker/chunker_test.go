package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadArguments(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)
	_, err = New(5, 5)
	assert.Error(t, err)
	_, err = New(5, 7)
	assert.Error(t, err)
	_, err = New(5, -1)
	assert.Error(t, err)
	_, err = New(5, 4)
	assert.NoError(t, err)
}

func TestChunkEmptyText(t *testing.T) {
	c, err := New(5, 2)
	require.NoError(t, err)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  "))
}

func TestChunkSlidingWindows(t *testing.T) {
	c, err := New(5, 2)
	require.NoError(t, err)

	// 12 words: windows start at 0, 3, 6, 9.
	words := []string{"w0", "w1", "w2", "w3", "w4", "w5", "w6", "w7", "w8", "w9", "w10", "w11"}
	chunks := c.Chunk(strings.Join(words, " "))
	require.Len(t, chunks, 4)

	assert.Equal(t, "w0 w1 w2 w3 w4", chunks[0].Text)
	assert.Equal(t, "w3 w4 w5 w6 w7", chunks[1].Text)
	assert.Equal(t, "w6 w7 w8 w9 w10", chunks[2].Text)
	assert.Equal(t, "w9 w10 w11", chunks[3].Text)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, len(ch.Text), ch.EndOffset-ch.StartOffset)
	}
	// Cursor advances to the end of the previous chunk.
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, chunks[0].EndOffset, chunks[1].StartOffset)
	assert.Equal(t, chunks[1].EndOffset, chunks[2].StartOffset)
}

func TestChunkStopsWhenWindowReachesEnd(t *testing.T) {
	c, err := New(5, 2)
	require.NoError(t, err)

	// Fewer words than one window: exactly one chunk, no tail duplicates.
	chunks := c.Chunk("a b c")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a b c", chunks[0].Text)

	// Exactly one full window.
	chunks = c.Chunk("a b c d e")
	require.Len(t, chunks, 1)
}

func TestChunkDeterminism(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)
	text := "the quick brown fox jumps over the lazy dog near the river bank"
	first := c.Chunk(text)
	second := c.Chunk(text)
	assert.Equal(t, first, second)
}

func TestChunkCoverage(t *testing.T) {
	c, err := New(3, 0)
	require.NoError(t, err)
	text := "  one   two three\nfour\tfive six seven  "
	chunks := c.Chunk(text)

	var parts []string
	for _, ch := range chunks {
		parts = append(parts, ch.Text)
	}
	assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(parts, " "))
}
