// Package chunker splits normalized text into overlapping, position-addressed
// segments suitable for embedding and lexical indexing.
package chunker

import (
	"fmt"
	"strings"
)

// Chunk is one window over a document's whitespace token sequence.
// StartOffset and EndOffset are character offsets into the joined text;
// EndOffset-StartOffset always equals len(Text).
type Chunk struct {
	Position    int
	StartOffset int
	EndOffset   int
	Text        string
}

// Chunker produces deterministic sliding-window chunks. Identical input
// always yields identical chunk boundaries; re-ingestion relies on this to
// avoid regenerating vectors for unchanged content.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker emitting windows of size tokens that overlap by
// overlap tokens. overlap must be smaller than size or the window would
// never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text on whitespace and walks a sliding window over the token
// sequence. Each window is rejoined with single spaces; the running character
// cursor advances to the end of each emitted chunk. Zero tokens yield zero
// chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []Chunk
	cursor := 0
	start := 0
	for start < len(words) {
		last := start + c.size
		if last > len(words) {
			last = len(words)
		}
		chunkText := strings.Join(words[start:last], " ")
		chunks = append(chunks, Chunk{
			Position:    len(chunks),
			StartOffset: cursor,
			EndOffset:   cursor + len(chunkText),
			Text:        chunkText,
		})
		if last >= len(words) {
			break
		}
		cursor += len(chunkText)
		start = last - c.overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
