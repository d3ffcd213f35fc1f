// Package mediator turns free-text user turns into structured slot state.
//
// Each session owns a transcript that starts with a fixed extraction prompt.
// Every turn sends the whole transcript to the text-generation client and
// merges the returned object into the session's slot state. Turns within a
// session are applied one at a time, in submission order.
package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/llm"
	"github.com/ashureev/mailpilot/internal/observability"
	"github.com/ashureev/mailpilot/internal/session"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/ashureev/mailpilot/internal/store"
)

var errNotAnObject = errors.New("reply is not a JSON object")

// Config bounds mediator memory use.
type Config struct {
	SessionTTL  time.Duration
	MaxSessions int
	MaxTurns    int
}

// DefaultConfig returns default mediator configuration.
func DefaultConfig() Config {
	return Config{
		SessionTTL:  2 * time.Hour,
		MaxSessions: 10000,
		MaxTurns:    20,
	}
}

// conversation is the in-memory state of one session.
type conversation struct {
	loaded     bool
	state      domain.SlotState
	transcript []domain.ChatMessage
}

// Mediator maintains per-session slot state.
type Mediator struct {
	completer llm.Completer
	store     store.SessionStore
	sessions  *session.Registry[*conversation]
	cfg       Config
	logger    *slog.Logger
}

// New creates a mediator. sessions may be nil, in which case state lives
// only in memory.
func New(completer llm.Completer, sessions store.SessionStore, cfg Config, logger *slog.Logger) *Mediator {
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

	return &Mediator{
		completer: completer,
		store:     sessions,
		sessions: session.NewRegistry(cfg.SessionTTL, cfg.MaxSessions,
			func(string) *conversation { return &conversation{} },
			session.WithEvictCallback[*conversation](func(string) { observability.RecordSessionsEvicted(1) }),
		),
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the in-memory eviction sweep until ctx is cancelled.
func (m *Mediator) Start(ctx context.Context) {
	m.sessions.StartEviction(ctx, time.Minute)
}

// Advance applies one user turn to the session and returns the merged state.
//
// An unparsable model reply leaves the state unchanged and is not an error.
// A failed model call is returned as a generation error and the user turn is
// dropped from the transcript.
func (m *Mediator) Advance(ctx context.Context, sessionID, utterance string) (domain.SlotState, error) {
	const op = "mediator.advance"

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return domain.SlotState{}, shared.Validation(op, "input is required")
	}

	e, release := m.sessions.Acquire(sessionID)
	defer release()
	conv := e.Value
	m.ensureLoaded(ctx, sessionID, conv)

	conv.transcript = append(conv.transcript, domain.ChatMessage{Role: domain.RoleUser, Content: utterance})

	reply, err := m.completer.Complete(ctx, llm.Request{Messages: conv.transcript, JSON: true})
	if err != nil {
		conv.transcript = conv.transcript[:len(conv.transcript)-1]
		observability.RecordMediatorTurn("error")
		m.logger.Error("Mediator turn failed", "session_id", sessionID, "error", err)
		return conv.state.Clone(), shared.Generation(op, err)
	}

	conv.transcript = append(conv.transcript, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})

	next, err := parseSlots(reply)
	if err != nil {
		observability.RecordMediatorParseFailure()
		m.logger.Warn("Mediator reply was not a slot object, keeping state",
			"session_id", sessionID,
			"error", err,
			"reply_length", len(reply),
		)
	} else {
		conv.state = conv.state.Merge(next)
	}

	conv.transcript = trimTranscript(conv.transcript, m.cfg.MaxTurns)
	m.persist(ctx, sessionID, conv)
	observability.RecordMediatorTurn("success")

	return conv.state.Clone(), nil
}

// CurrentState returns the session's slot state without calling the model.
// Unknown sessions yield the empty state.
func (m *Mediator) CurrentState(ctx context.Context, sessionID string) domain.SlotState {
	e, release := m.sessions.Acquire(sessionID)
	defer release()
	m.ensureLoaded(ctx, sessionID, e.Value)
	return e.Value.state.Clone()
}

// Context returns the compose-view projection of the session's state.
func (m *Mediator) Context(ctx context.Context, sessionID string) domain.ComposeContext {
	return m.CurrentState(ctx, sessionID).Context()
}

// Reset discards the session's state and transcript.
func (m *Mediator) Reset(ctx context.Context, sessionID string) error {
	e, release := m.sessions.Acquire(sessionID)
	defer release()

	e.Value = &conversation{loaded: true, transcript: newTranscript()}
	if m.store == nil {
		return nil
	}
	if err := m.store.DeleteMediatorSession(ctx, sessionID); err != nil {
		return shared.Store("mediator.reset", err)
	}
	return nil
}

// ensureLoaded fills conv from the store the first time a session is seen in
// this process. The entry lock must be held.
func (m *Mediator) ensureLoaded(ctx context.Context, sessionID string, conv *conversation) {
	if conv.loaded {
		return
	}
	conv.loaded = true
	conv.transcript = newTranscript()

	if m.store == nil {
		return
	}
	saved, err := m.store.GetMediatorSession(ctx, sessionID)
	if err != nil {
		m.logger.Warn("Failed to load mediator session, starting fresh", "session_id", sessionID, "error", err)
		return
	}
	if saved == nil {
		return
	}

	conv.state = saved.State
	if len(saved.Transcript) > 0 && saved.Transcript[0].Role == domain.RoleSystem {
		conv.transcript = saved.Transcript
	} else {
		conv.transcript = append(conv.transcript, saved.Transcript...)
	}
	m.logger.Debug("Mediator session restored", "session_id", sessionID, "turns", len(conv.transcript)/2)
}

func (m *Mediator) persist(ctx context.Context, sessionID string, conv *conversation) {
	if m.store == nil {
		return
	}
	err := m.store.UpsertMediatorSession(ctx, &store.MediatorSession{
		SessionID:  sessionID,
		State:      conv.state,
		Transcript: conv.transcript,
	})
	if err != nil {
		m.logger.Warn("Failed to persist mediator session", "session_id", sessionID, "error", err)
	}
}

func newTranscript() []domain.ChatMessage {
	return []domain.ChatMessage{{Role: domain.RoleSystem, Content: extractionPrompt}}
}

// parseSlots decodes a model reply into a slot extraction.
func parseSlots(reply string) (domain.SlotState, error) {
	var next domain.SlotState
	raw := bytes.TrimSpace([]byte(reply))
	if len(raw) == 0 || raw[0] != '{' {
		return next, errNotAnObject
	}
	if err := json.Unmarshal(raw, &next); err != nil {
		return next, err
	}
	return next, nil
}

// trimTranscript keeps the preamble and the most recent maxTurns user and
// assistant pairs.
func trimTranscript(t []domain.ChatMessage, maxTurns int) []domain.ChatMessage {
	limit := 1 + 2*maxTurns
	if len(t) <= limit {
		return t
	}
	out := make([]domain.ChatMessage, 0, limit)
	out = append(out, t[0])
	return append(out, t[len(t)-2*maxTurns:]...)
}
