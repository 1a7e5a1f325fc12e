// Package chat is the retrieval-augmented chat loop: retrieve context for
// the question, optionally rerank it, stream the model's answer, and record
// both turns in the catalog.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"docdex/internal/config"
	"docdex/internal/llmservice"
	"docdex/internal/rerank"
	"docdex/internal/search"
	"docdex/internal/storage"
)

const systemPrompt = "You are a helpful assistant. Use the provided context to answer the query. If the context does not contain the answer, say so."

// Session is one conversation. Turns are numbered from 1; each Ask persists
// a user message and an assistant message.
type Session struct {
	engine  *search.Engine
	store   storage.Catalog
	llm     config.LLMConfig
	scorer  rerank.Scorer
	opts    search.Options
	turn    int
	history []llms.MessageContent
}

func NewSession(engine *search.Engine, store storage.Catalog, llm config.LLMConfig, scorer rerank.Scorer, opts search.Options) *Session {
	return &Session{
		engine: engine,
		store:  store,
		llm:    llm,
		scorer: scorer,
		opts:   opts,
		history: []llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		},
	}
}

// Ask answers one question. Retrieval failures abort the turn; persistence
// failures are logged but never surface, the conversation keeps going.
func (s *Session) Ask(ctx context.Context, question string, onToken func(token string)) (string, error) {
	results, err := s.engine.Query(ctx, question, s.opts)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	if s.scorer != nil {
		results = rerank.Apply(ctx, s.scorer, question, results)
	}

	s.turn++
	s.record(ctx, "user", question, results)

	prompt := buildPrompt(question, results)
	s.history = append(s.history, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	answer, err := llmservice.Chat(ctx, s.llm, s.history, onToken)
	if err != nil {
		return "", err
	}
	s.history = append(s.history, llms.TextParts(schema.ChatMessageTypeAI, answer))
	s.record(ctx, "assistant", answer, nil)
	return answer, nil
}

func buildPrompt(question string, results []storage.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for _, r := range results {
		b.WriteString(r.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Query: ")
	b.WriteString(question)
	return b.String()
}

func (s *Session) record(ctx context.Context, role, content string, results []storage.SearchResult) {
	msg := &storage.ChatMessage{Role: role, Content: content, Turn: s.turn}
	for _, r := range results {
		msg.Context = append(msg.Context, map[string]any{
			"chunk_id": r.ChunkID,
			"path":     r.DocumentPath,
			"score":    r.Score,
		})
	}
	if err := s.store.SaveChatMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Str("role", role).Msg("chat history write failed")
	}
}
