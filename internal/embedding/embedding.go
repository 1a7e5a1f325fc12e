// Package embedding turns chunk texts into fixed-dimension vectors through a
// pluggable provider: API-backed (OpenAI-compatible or Ollama), a local HTTP
// endpoint, or a deterministic mock for offline use and tests.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docdex/internal/config"
)

// Provider embeds an ordered list of texts; the result has the same length
// and order as the input, each vector with Dim() elements.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// New builds the provider selected by configuration.
func New(cfg config.EmbedConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai embedder: %w", err)
		}
		impl, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		return &langchainProvider{impl: impl, dim: cfg.Dim}, nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama embedder: %w", err)
		}
		impl, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		return &langchainProvider{impl: impl, dim: cfg.Dim}, nil
	case "local", "http":
		return NewHTTP(cfg.BaseURL, cfg.Model, cfg.Dim), nil
	case "mock":
		return NewMock(cfg.Dim), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.Provider)
	}
}

type langchainProvider struct {
	impl *embeddings.EmbedderImpl
	dim  int
}

func (p *langchainProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	return vecs, nil
}

func (p *langchainProvider) Dim() int { return p.dim }
