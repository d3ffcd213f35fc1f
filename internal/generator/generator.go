// Package generator drafts email content from a description and summarizes
// received mail.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/llm"
	"github.com/ashureev/mailpilot/internal/session"
	"github.com/ashureev/mailpilot/internal/shared"
)

var errIncompleteDraft = errors.New("reply is missing subject or body")

// revisionPrefix joins a revision instruction onto the description.
const revisionPrefix = "\n\nPlease revise the email as follows:\n"

// Config bounds writer transcript memory.
type Config struct {
	SessionTTL  time.Duration
	MaxSessions int
	// MaxTurns is the number of request and draft pairs kept per session.
	MaxTurns int
}

// DefaultConfig returns default generator configuration.
func DefaultConfig() Config {
	return Config{
		SessionTTL:  2 * time.Hour,
		MaxSessions: 10000,
		MaxTurns:    20,
	}
}

// Generator drafts emails. Each session keeps its own writer transcript so
// revisions build on earlier drafts.
type Generator struct {
	completer llm.Completer
	sessions  *session.Registry[[]domain.ChatMessage]
	maxTurns  int
	logger    *slog.Logger
}

// New creates a generator. Zero config fields take their defaults.
func New(completer llm.Completer, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = def.MaxTurns
	}
	return &Generator{
		completer: completer,
		sessions: session.NewRegistry(cfg.SessionTTL, cfg.MaxSessions, func(string) []domain.ChatMessage {
			return nil
		}),
		maxTurns: cfg.MaxTurns,
		logger:   logger,
	}
}

// Start runs the transcript eviction sweep until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	g.sessions.StartEviction(ctx, time.Minute)
}

// Generate drafts an email for description. A non-empty revision is
// appended as a change request to the same session transcript.
func (g *Generator) Generate(ctx context.Context, sessionID, description, revision string) (*domain.Draft, error) {
	const op = "generator.generate"

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, shared.Validation(op, "description not ready")
	}

	prompt := description
	if r := strings.TrimSpace(revision); r != "" {
		prompt += revisionPrefix + r
	}

	e, release := g.sessions.Acquire(sessionID)
	defer release()

	request := domain.ChatMessage{Role: domain.RoleUser, Content: prompt}
	messages := make([]domain.ChatMessage, 0, len(e.Value)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: writerPrompt})
	messages = append(messages, e.Value...)
	messages = append(messages, request)

	reply, err := g.completer.Complete(ctx, llm.Request{Messages: messages, JSON: true})
	if err != nil {
		g.logger.Error("Email generation failed", "session_id", sessionID, "error", err)
		return nil, shared.Generation(op, err)
	}

	draft, err := parseDraft(reply)
	if err != nil {
		g.logger.Warn("Email generation returned an unusable draft", "session_id", sessionID, "error", err)
		return nil, shared.Generation(op, err)
	}

	turns := make([]domain.ChatMessage, 0, len(e.Value)+2)
	turns = append(turns, e.Value...)
	turns = append(turns, request, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})
	e.Value = lastTurns(turns, g.maxTurns)
	g.logger.Info("Email generated", "session_id", sessionID, "revision", revision != "")
	return draft, nil
}

// Reset clears the session's writer transcript.
func (g *Generator) Reset(sessionID string) {
	e, release := g.sessions.Acquire(sessionID)
	defer release()
	e.Value = nil
}

// lastTurns keeps the most recent maxTurns request and draft pairs.
func lastTurns(t []domain.ChatMessage, maxTurns int) []domain.ChatMessage {
	if len(t) <= 2*maxTurns {
		return t
	}
	return append([]domain.ChatMessage(nil), t[len(t)-2*maxTurns:]...)
}

func parseDraft(reply string) (*domain.Draft, error) {
	var d domain.Draft
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &d); err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.Subject) == "" || strings.TrimSpace(d.Body) == "" {
		return nil, errIncompleteDraft
	}
	return &d, nil
}
