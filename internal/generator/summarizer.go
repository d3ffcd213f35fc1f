package generator

import (
	"context"
	"strings"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/llm"
	"github.com/ashureev/mailpilot/internal/shared"
)

// Summarizer condenses received mail into a short summary.
type Summarizer struct {
	completer llm.Completer
}

// NewSummarizer creates a summarizer.
func NewSummarizer(completer llm.Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Summarize returns a summary of text. Each call is a single stateless turn.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	const op = "generator.summarize"

	if strings.TrimSpace(text) == "" {
		return "", shared.Validation(op, "missing text")
	}

	reply, err := s.completer.Complete(ctx, llm.Request{
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: summarizerPrompt},
			{Role: domain.RoleUser, Content: text},
		},
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		return "", shared.Generation(op, err)
	}
	return strings.TrimSpace(reply), nil
}
