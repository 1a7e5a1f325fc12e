// Package llmservice wraps the chat model backends behind two calls: a
// one-shot Generate and a token-streaming Chat.
package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docdex/internal/config"
)

func newModel(cfg config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "openai", "":
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		return openai.New(opts...)
	case "ollama":
		var opts []ollama.Option
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Generate runs one completion and returns the first choice's text.
func Generate(ctx context.Context, cfg config.LLMConfig, messages []llms.MessageContent) (string, error) {
	llm, err := newModel(cfg)
	if err != nil {
		return "", err
	}
	resp, err := llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// Chat streams a completion, invoking onToken for every token as it arrives.
// Cancelling ctx stops the stream; the full text is returned at the end.
func Chat(ctx context.Context, cfg config.LLMConfig, messages []llms.MessageContent, onToken func(token string)) (string, error) {
	llm, err := newModel(cfg)
	if err != nil {
		return "", err
	}
	var full strings.Builder
	_, err = llm.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			full.Write(chunk)
			if onToken != nil {
				onToken(string(chunk))
			}
			return nil
		}),
	)
	if err != nil {
		return "", err
	}
	return full.String(), nil
}
