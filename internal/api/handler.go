// Package api provides HTTP handlers for the mailpilot API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/identity"
	"github.com/ashureev/mailpilot/internal/mailprovider"
	"github.com/ashureev/mailpilot/internal/scheduler"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/ashureev/mailpilot/internal/store"
	"github.com/ashureev/mailpilot/internal/transcribe"
)

const maxJSONBody = 1 << 20

// Mediator is the slot-filling surface the handlers use.
type Mediator interface {
	Advance(ctx context.Context, sessionID, utterance string) (domain.SlotState, error)
	CurrentState(ctx context.Context, sessionID string) domain.SlotState
	Context(ctx context.Context, sessionID string) domain.ComposeContext
	Reset(ctx context.Context, sessionID string) error
}

// Generator drafts email content for a session.
type Generator interface {
	Generate(ctx context.Context, sessionID, description, revision string) (*domain.Draft, error)
	Reset(sessionID string)
}

// Summarizer condenses a received message.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Scheduler manages deferred sends.
type Scheduler interface {
	Enqueue(ctx context.Context, req scheduler.EnqueueRequest) (string, error)
	ListScheduled(ctx context.Context, owner string) ([]*domain.ScheduledSendTask, error)
	Cancel(ctx context.Context, owner, id string) error
	Status(ctx context.Context) (*scheduler.Status, error)
	Health(ctx context.Context) (*scheduler.Health, error)
}

// Contacts resolves recipients and records relations.
type Contacts interface {
	Search(ctx context.Context, owner string, creds *domain.Credentials, query string) ([]domain.Contact, error)
	RecordRelation(ctx context.Context, owner, recipient, relation string)
}

// CredentialSealer seals and opens provider credentials.
type CredentialSealer interface {
	Seal(creds *domain.Credentials) ([]byte, error)
	Open(sealed []byte) (*domain.Credentials, error)
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Handler. Provider and Transcriber may be
// nil when the corresponding feature is not configured.
type Deps struct {
	Auth        store.AuthStore
	Pinger      Pinger
	Provider    mailprovider.Provider
	Sealer      CredentialSealer
	Mediator    Mediator
	Generator   Generator
	Summarizer  Summarizer
	Scheduler   Scheduler
	Contacts    Contacts
	Transcriber transcribe.Transcriber
	FrontendURL string
	Logger      *slog.Logger
}

// Handler serves the JSON API.
type Handler struct {
	auth        store.AuthStore
	pinger      Pinger
	provider    mailprovider.Provider
	sealer      CredentialSealer
	mediator    Mediator
	generator   Generator
	summarizer  Summarizer
	scheduler   Scheduler
	contacts    Contacts
	transcriber transcribe.Transcriber
	frontendURL string
	logger      *slog.Logger
}

// NewHandler creates a Handler from its dependencies.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:        d.Auth,
		pinger:      d.Pinger,
		provider:    d.Provider,
		sealer:      d.Sealer,
		mediator:    d.Mediator,
		generator:   d.Generator,
		summarizer:  d.Summarizer,
		scheduler:   d.Scheduler,
		contacts:    d.Contacts,
		transcriber: d.Transcriber,
		frontendURL: d.FrontendURL,
		logger:      logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{"success": false, "error": message})
}

// OK writes a success envelope with payload merged in.
func OK(w http.ResponseWriter, payload map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

// Fail maps err onto a status code and writes the error envelope.
// Deadline errors are reported as retryable.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("Request timed out", "path", r.URL.Path, "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success":   false,
			"error":     "request timed out",
			"retryable": true,
		})
		return
	}

	kind := shared.KindOf(err)
	status := statusFor(kind)
	msg := shared.MessageOf(err)
	if kind == shared.KindInternal {
		msg = "internal error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"path", r.URL.Path,
			"kind", kind.String(),
			"session_id", identity.SessionIDFromContext(r.Context()),
			"error", err,
		)
	} else {
		h.logger.Debug("Request rejected", "path", r.URL.Path, "kind", kind.String(), "error", err)
	}
	Error(w, status, msg)
}

func statusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindAuthRequired:
		return http.StatusUnauthorized
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindGeneration, shared.KindProvider, shared.KindSearch, shared.KindTranscription:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return shared.E(shared.KindValidation, "api.decode", "invalid JSON body", err)
	}
	return nil
}

// credentials returns the signed-in owner and their opened credentials.
func (h *Handler) credentials(ctx context.Context) (string, *domain.Credentials, error) {
	auth := identity.AuthFromContext(ctx)
	if !auth.Authenticated() {
		return "", nil, shared.AuthRequired("api.credentials", nil)
	}
	creds, err := h.sealer.Open(auth.SealedCredentials)
	if err != nil {
		return "", nil, shared.AuthRequired("api.credentials", err)
	}
	return auth.OwnerEmail, creds, nil
}

// mail returns the configured provider or a provider error.
func (h *Handler) mail() (mailprovider.Provider, error) {
	if h.provider == nil {
		return nil, shared.E(shared.KindProvider, "api.mail", "mail provider is not configured", nil)
	}
	return h.provider, nil
}
