package api

import (
	"net/http"
	"strings"

	"github.com/ashureev/mailpilot/internal/identity"
	"github.com/ashureev/mailpilot/internal/shared"
)

type advanceRequest struct {
	Input string `json:"input"`
}

// Advance feeds one user utterance to the mediator and returns the merged
// slot state. The signed-in owner's name is appended so the model can sign
// on their behalf.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		h.Fail(w, r, shared.Validation("api.advance", "Missing input"))
		return
	}

	ctx := r.Context()
	sender := "User"
	if auth := identity.AuthFromContext(ctx); auth.Authenticated() && auth.OwnerName != "" {
		sender = auth.OwnerName
	}

	state, err := h.mediator.Advance(ctx, identity.ConversationKey(ctx), req.Input+" sender_name: "+sender)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{"state": state})
}

// MediatorState returns the current slot state.
func (h *Handler) MediatorState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	OK(w, map[string]interface{}{"state": h.mediator.CurrentState(ctx, identity.ConversationKey(ctx))})
}

// ComposeContext returns the compose view's projection of the slot state.
func (h *Handler) ComposeContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	OK(w, map[string]interface{}{"context": h.mediator.Context(ctx, identity.ConversationKey(ctx))})
}

// ResetConversation clears the mediator state and the draft transcript.
func (h *Handler) ResetConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.resetConversation(r); err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, nil)
}

func (h *Handler) resetConversation(r *http.Request) error {
	ctx := r.Context()
	key := identity.ConversationKey(ctx)
	h.generator.Reset(key)
	return h.mediator.Reset(ctx, key)
}
