// Package llm provides the text-generation client used by the mediator,
// the email writer and the summarizer.
package llm

import (
	"context"

	"github.com/ashureev/mailpilot/internal/domain"
)

// Request is one chat-completion call over a role-tagged transcript.
type Request struct {
	Messages []domain.ChatMessage

	// JSON asks the model for a single JSON object.
	JSON bool

	// Temperature overrides the model default when non-nil.
	Temperature *float64
}

// Completer produces the assistant reply for a transcript.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Temperature returns a pointer to t for Request.Temperature.
func Temperature(t float64) *float64 {
	return &t
}
