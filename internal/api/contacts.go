package api

import (
	"net/http"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/identity"
)

// SearchContacts merges saved relations with the owner's address book.
// Anonymous callers get an auth error once the query is long enough to
// reach the provider.
func (h *Handler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		owner string
		creds *domain.Credentials
	)
	if identity.AuthFromContext(ctx).Authenticated() {
		var err error
		owner, creds, err = h.credentials(ctx)
		if err != nil {
			h.Fail(w, r, err)
			return
		}
	}

	contacts, err := h.contacts.Search(ctx, owner, creds, r.URL.Query().Get("q"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{"contacts": contacts})
}
