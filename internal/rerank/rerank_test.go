package rerank

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docdex/internal/storage"
)

func candidates() []storage.SearchResult {
	return []storage.SearchResult{
		{ChunkID: 1, Text: "the quick brown fox", Score: 0.9},
		{ChunkID: 2, Text: "jumps over the lazy dog", Score: 0.8},
		{ChunkID: 3, Text: "pack my box with jugs", Score: 0.7},
	}
}

func TestHeuristicScore(t *testing.T) {
	ctx := context.Background()
	h := Heuristic{}

	score, err := h.Score(ctx, "quick fox", "the quick brown fox")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, err = h.Score(ctx, "quick dog", "the quick brown fox")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)

	// Repeated query terms count once.
	score, err = h.Score(ctx, "fox fox fox", "the quick brown fox")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, err = h.Score(ctx, "", "anything")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestApplyZeroMatchKeepsOrder(t *testing.T) {
	out := Apply(context.Background(), Heuristic{}, "xylophone", candidates())
	require.Len(t, out, 3)
	for i, want := range []int64{1, 2, 3} {
		assert.Equal(t, want, out[i].ChunkID)
		assert.Zero(t, out[i].RerankScore)
	}
	// The retrieval score survives the pass.
	assert.Equal(t, 0.9, out[0].Score)
}

func TestApplyReorders(t *testing.T) {
	out := Apply(context.Background(), Heuristic{}, "lazy dog", candidates())
	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0].ChunkID)
	assert.InDelta(t, 1.0, out[0].RerankScore, 1e-9)
	assert.Equal(t, 0.8, out[0].Score)
}

type failingScorer struct{}

func (failingScorer) Score(ctx context.Context, query, snippet string) (float64, error) {
	return 0, errors.New("scoring service down")
}

func TestApplyFallsBackPerSnippet(t *testing.T) {
	out := Apply(context.Background(), failingScorer{}, "lazy dog", candidates())
	require.Len(t, out, 3)
	// Heuristic fallback still puts the matching snippet first.
	assert.Equal(t, int64(2), out[0].ChunkID)
}

func TestHTTPScorerBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"scores": [0.1, 0.9, 0.5]}`))
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, "cross-encoder")
	out := Apply(context.Background(), scorer, "anything", candidates())
	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0].ChunkID)
	assert.Equal(t, int64(3), out[1].ChunkID)
	assert.Equal(t, int64(1), out[2].ChunkID)
}

func TestHTTPScorerBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[0.25]`))
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, "")
	score, err := scorer.Score(context.Background(), "q", "snippet")
	require.NoError(t, err)
	assert.Equal(t, 0.25, score)
}

func TestHTTPScorerLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"scores": [0.1]}`))
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, "")
	_, err := scorer.ScoreBatch(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}

func TestParseScore(t *testing.T) {
	for _, tc := range []struct {
		answer string
		want   float64
		ok     bool
	}{
		{"0.7", 0.7, true},
		{"The relevance is 0.35.", 0.35, true},
		{"5", 1.0, true},
		{"no number here", 0, false},
	} {
		got, err := parseScore(tc.answer)
		if tc.ok {
			require.NoError(t, err, tc.answer)
			assert.InDelta(t, tc.want, got, 1e-9, tc.answer)
		} else {
			assert.Error(t, err, tc.answer)
		}
	}
}
