package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/mailpilot/internal/mailprovider"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/go-chi/chi/v5"
)

// ListMessages returns one page of the owner's mailbox.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, creds, err := h.credentials(ctx)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	provider, err := h.mail()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := mailprovider.ListOptions{
		Label:     q.Get("label"),
		Query:     q.Get("q"),
		PageToken: q.Get("pageToken"),
	}
	if raw := q.Get("maxResults"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > 100 {
			h.Fail(w, r, shared.Validation("api.inbox", "maxResults must be between 1 and 100"))
			return
		}
		opts.MaxResults = n
	}

	page, err := provider.ListMessages(ctx, creds, opts)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{
		"messages":      page.Messages,
		"nextPageToken": page.NextPageToken,
	})
}

// GetMessage returns a decoded message and marks it read. A failed mark is
// logged, not returned.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, creds, err := h.credentials(ctx)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	provider, err := h.mail()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	msg, err := provider.GetMessage(ctx, creds, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := provider.MarkRead(ctx, creds, id); err != nil {
		h.logger.Warn("Failed to mark message read", "message_id", id, "error", err)
	}
	OK(w, map[string]interface{}{"message": msg})
}
