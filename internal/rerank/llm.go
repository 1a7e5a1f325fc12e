package rerank

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"docdex/internal/config"
	"docdex/internal/llmservice"
)

const scorePrompt = `Rate how relevant the snippet is to the query on a scale from 0.0 to 1.0.
Answer with the number only.

Query: %s

Snippet: %s`

// LLMScorer asks a chat model for a 0..1 relevance number per snippet.
type LLMScorer struct {
	cfg config.LLMConfig
}

func NewLLMScorer(cfg config.LLMConfig) *LLMScorer {
	return &LLMScorer{cfg: cfg}
}

func (s *LLMScorer) Score(ctx context.Context, query, snippet string) (float64, error) {
	prompt := fmt.Sprintf(scorePrompt, query, snippet)
	answer, err := llmservice.Generate(ctx, s.cfg, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return 0, err
	}
	return parseScore(answer)
}

// parseScore pulls the first float out of the model's answer and clamps it.
func parseScore(answer string) (float64, error) {
	for _, f := range strings.Fields(answer) {
		f = strings.Trim(f, ".,;:")
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, nil
	}
	return 0, fmt.Errorf("no score in model answer %q", answer)
}
