package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"docdex/internal/chunker"
)

// Memory is an in-process catalog used by tests and dry runs. It mirrors the
// Postgres semantics: path-unique documents, full chunk replacement, cosine
// scoring for vector mode, and an AND-of-terms lexical match where the score
// is query-term frequency normalized by chunk length.
type Memory struct {
	mu        sync.RWMutex
	nextDocID int64
	nextChkID int64
	docs      map[string]*Document
	chunks    map[int64][]Chunk    // document ID -> ordered chunks
	vectors   map[int64][]float32  // chunk ID -> embedding
	queries   []QueryRecord
	chats     []ChatMessage
}

var _ Catalog = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]*Document),
		chunks:  make(map[int64][]Chunk),
		vectors: make(map[int64][]float32),
	}
}

func (m *Memory) Init(ctx context.Context) error { return nil }

func (m *Memory) DocumentByPath(ctx context.Context, path string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *Memory) ReplaceDocument(ctx context.Context, doc *Document, chunks []chunker.Chunk, embeddings [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.docs[doc.Path]; ok {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else {
		m.nextDocID++
		doc.ID = m.nextDocID
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	cp := *doc
	m.docs[doc.Path] = &cp

	m.dropChunksLocked(doc.ID)
	rows := make([]Chunk, 0, len(chunks))
	for i, ch := range chunks {
		m.nextChkID++
		row := Chunk{
			ID:          m.nextChkID,
			DocumentID:  doc.ID,
			Position:    ch.Position,
			StartOffset: ch.StartOffset,
			EndOffset:   ch.EndOffset,
			Text:        ch.Text,
			CreatedAt:   now,
		}
		rows = append(rows, row)
		if i < len(embeddings) {
			emb := make([]float32, len(embeddings[i]))
			copy(emb, embeddings[i])
			m.vectors[row.ID] = emb
		}
	}
	m.chunks[doc.ID] = rows
	return nil
}

func (m *Memory) dropChunksLocked(docID int64) {
	for _, ch := range m.chunks[docID] {
		delete(m.vectors, ch.ID)
	}
	delete(m.chunks, docID)
}

func (m *Memory) DeleteDocument(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	m.dropChunksLocked(doc.ID)
	delete(m.docs, path)
	return nil
}

func (m *Memory) ListPaths(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.docs))
	for p := range m.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *Memory) DocumentChunks(ctx context.Context, path string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Chunk, len(m.chunks[doc.ID]))
	copy(out, m.chunks[doc.ID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// ChunkCount and VectorCount expose catalog cardinality for tests.
func (m *Memory) ChunkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rows := range m.chunks {
		n += len(rows)
	}
	return n
}

func (m *Memory) VectorCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *Memory) VectorSearch(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []SearchResult
	m.eachChunkLocked(func(doc *Document, ch Chunk) {
		vec, ok := m.vectors[ch.ID]
		if !ok {
			return
		}
		score := cosineSimilarity(embedding, vec)
		results = append(results, SearchResult{
			ChunkID:      ch.ID,
			DocumentPath: doc.Path,
			Position:     ch.Position,
			Text:         ch.Text,
			Score:        score,
			VectorScore:  score,
		})
	})
	return rankAndTruncate(results, topK), nil
}

func (m *Memory) KeywordSearch(ctx context.Context, query, rankFn string, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	var results []SearchResult
	m.eachChunkLocked(func(doc *Document, ch Chunk) {
		score, matched := lexicalScore(terms, ch.Text)
		if !matched {
			return
		}
		results = append(results, SearchResult{
			ChunkID:      ch.ID,
			DocumentPath: doc.Path,
			Position:     ch.Position,
			Text:         ch.Text,
			Score:        score,
			LexicalScore: score,
		})
	})
	return rankAndTruncate(results, topK), nil
}

func (m *Memory) HybridSearch(ctx context.Context, embedding []float32, query, rankFn string, alpha float64, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	terms := queryTerms(query)
	var results []SearchResult
	m.eachChunkLocked(func(doc *Document, ch Chunk) {
		vec, ok := m.vectors[ch.ID]
		if !ok {
			// The hybrid join requires both indexes; vectorless chunks stay
			// invisible here just as in the SQL join.
			return
		}
		vscore := cosineSimilarity(embedding, vec)
		lscore, _ := lexicalScore(terms, ch.Text)
		results = append(results, SearchResult{
			ChunkID:      ch.ID,
			DocumentPath: doc.Path,
			Position:     ch.Position,
			Text:         ch.Text,
			Score:        alpha*vscore + (1-alpha)*lscore,
			VectorScore:  vscore,
			LexicalScore: lscore,
		})
	})
	return rankAndTruncate(results, topK), nil
}

func (m *Memory) SaveQuery(ctx context.Context, rec *QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.queries) + 1)
	rec.CreatedAt = time.Now()
	m.queries = append(m.queries, *rec)
	return nil
}

func (m *Memory) SaveChatMessage(ctx context.Context, msg *ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = int64(len(m.chats) + 1)
	msg.CreatedAt = time.Now()
	m.chats = append(m.chats, *msg)
	return nil
}

func (m *Memory) SavedQueries() []QueryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]QueryRecord, len(m.queries))
	copy(out, m.queries)
	return out
}

func (m *Memory) SavedChatMessages() []ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChatMessage, len(m.chats))
	copy(out, m.chats)
	return out
}

func (m *Memory) Close() error { return nil }

// eachChunkLocked visits chunks in deterministic path/position order so tie
// scores keep a stable ordering across runs.
func (m *Memory) eachChunkLocked(fn func(doc *Document, ch Chunk)) {
	paths := make([]string, 0, len(m.docs))
	for p := range m.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		doc := m.docs[p]
		for _, ch := range m.chunks[doc.ID] {
			fn(doc, ch)
		}
	}
}

func rankAndTruncate(results []SearchResult, topK int) []SearchResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		t = strings.Trim(t, `.,;:!?"'()[]`)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// lexicalScore treats the query as an AND of terms: the chunk matches only
// when every term occurs as a token, and the score is the summed term
// frequency normalized by chunk length.
func lexicalScore(terms []string, text string) (float64, bool) {
	if len(terms) == 0 {
		return 0, false
	}
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return 0, false
	}
	counts := make(map[string]int)
	for _, tok := range tokens {
		tok = strings.Trim(tok, `.,;:!?"'()[]`)
		counts[tok]++
	}
	hits := 0
	for _, term := range terms {
		n := counts[term]
		if n == 0 {
			return 0, false
		}
		hits += n
	}
	return float64(hits) / float64(len(tokens)), true
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
