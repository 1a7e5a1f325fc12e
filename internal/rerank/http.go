package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPScorer calls a cross-encoder endpoint that scores all snippets of a
// query in one request.
type HTTPScorer struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewHTTPScorer(endpoint, model string) *HTTPScorer {
	if endpoint == "" {
		endpoint = "http://localhost:8080/rerank"
	}
	return &HTTPScorer{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type rerankRequest struct {
	Model  string   `json:"model"`
	Query  string   `json:"query"`
	Inputs []string `json:"inputs"`
}

// Score satisfies Scorer for single snippets.
func (s *HTTPScorer) Score(ctx context.Context, query, snippet string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, query, []string{snippet})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch posts every snippet at once; the response is either
// {"scores": [...]} or a bare JSON array, positionally aligned to inputs.
func (s *HTTPScorer) ScoreBatch(ctx context.Context, query string, snippets []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: s.model, Query: query, Inputs: snippets})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, raw)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Scores != nil {
		return checkedScores(wrapped.Scores, len(snippets))
	}
	var bare []float64
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return checkedScores(bare, len(snippets))
}

func checkedScores(scores []float64, want int) ([]float64, error) {
	if len(scores) != want {
		return nil, fmt.Errorf("rerank endpoint returned %d scores for %d inputs", len(scores), want)
	}
	return scores, nil
}
