// Package rerank is the second scoring pass over an already-ranked candidate
// set. Scoring is pluggable; applying the scores is a pure, stable reorder
// that never touches the catalog.
package rerank

import (
	"context"
	"sort"
	"strings"

	"docdex/internal/storage"
)

// Scorer assigns an independent relevance score to one snippet.
type Scorer interface {
	Score(ctx context.Context, query, snippet string) (float64, error)
}

// BatchScorer scores all snippets of one query in a single call. Apply
// prefers it over per-snippet scoring when available.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, query string, snippets []string) ([]float64, error)
}

// Heuristic scores by query-term coverage: the fraction of distinct
// lowercased query terms appearing as substrings of the snippet. Always in
// [0, 1]; an empty term set scores 0.
type Heuristic struct{}

func (Heuristic) Score(ctx context.Context, query, snippet string) (float64, error) {
	terms := distinctTerms(query)
	if len(terms) == 0 {
		return 0, nil
	}
	lowered := strings.ToLower(snippet)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms)), nil
}

func distinctTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// Apply rescores every candidate and stable-sorts descending by the new
// score. The original retrieval score stays on each row. A per-snippet
// scoring failure falls back to the heuristic score for that snippet only.
func Apply(ctx context.Context, scorer Scorer, query string, results []storage.SearchResult) []storage.SearchResult {
	fallback := Heuristic{}
	out := make([]storage.SearchResult, len(results))
	copy(out, results)

	var batch []float64
	if bs, ok := scorer.(BatchScorer); ok {
		snippets := make([]string, len(out))
		for i, r := range out {
			snippets[i] = r.Text
		}
		scores, err := bs.ScoreBatch(ctx, query, snippets)
		if err == nil {
			batch = scores
		}
	}
	for i := range out {
		if batch != nil {
			out[i].RerankScore = batch[i]
			continue
		}
		score, err := scorer.Score(ctx, query, out[i].Text)
		if err != nil {
			score, _ = fallback.Score(ctx, query, out[i].Text)
		}
		out[i].RerankScore = score
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out
}
