package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/identity"
	"github.com/ashureev/mailpilot/internal/shared"
)

// AuthStatus reports whether the browser session is signed in.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	auth := identity.AuthFromContext(r.Context())
	if !auth.Authenticated() {
		JSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"email":         auth.OwnerEmail,
		"name":          auth.OwnerName,
		"picture":       auth.Picture,
	})
}

// GoogleLogin stores a fresh OAuth state on the session and redirects to the
// consent page.
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := h.mail()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	state, err := newOAuthState()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	ctx := r.Context()
	session := sessionFor(ctx)
	session.OAuthState = state
	if err := h.auth.UpsertAuthSession(ctx, session); err != nil {
		h.Fail(w, r, shared.Store("api.login", err))
		return
	}

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback completes sign-in: it checks the OAuth state, exchanges the
// code, seals the credentials onto the session and redirects to the frontend.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	const op = "api.callback"

	provider, err := h.mail()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	ctx := r.Context()
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.Fail(w, r, shared.E(shared.KindAuthRequired, op, "sign-in was cancelled: "+e, nil))
		return
	}

	session := sessionFor(ctx)
	state := q.Get("state")
	if session.OAuthState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(session.OAuthState)) != 1 {
		h.Fail(w, r, shared.Validation(op, "invalid OAuth state"))
		return
	}

	creds, err := provider.Exchange(ctx, q.Get("code"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	info, err := provider.UserInfo(ctx, creds)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if info.Email == "" {
		h.Fail(w, r, shared.E(shared.KindAuthRequired, op, "account has no email address", nil))
		return
	}

	sealed, err := h.sealer.Seal(creds)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	if err := h.auth.UpsertUser(ctx, &domain.User{Email: info.Email, Name: info.Name, Picture: info.Picture}); err != nil {
		h.Fail(w, r, shared.Store(op, err))
		return
	}
	session.OwnerEmail = info.Email
	session.OwnerName = info.Name
	session.Picture = info.Picture
	session.SealedCredentials = sealed
	session.OAuthState = ""
	if err := h.auth.UpsertAuthSession(ctx, session); err != nil {
		h.Fail(w, r, shared.Store(op, err))
		return
	}

	h.logger.Info("User signed in", "owner", info.Email, "session_id", session.SessionID)

	target := h.frontendURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Logout forgets the provider identity bound to the browser session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.DeleteAuthSession(ctx, identity.SessionIDFromContext(ctx)); err != nil {
		h.Fail(w, r, shared.Store("api.logout", err))
		return
	}
	if err := h.resetConversation(r); err != nil {
		h.logger.Warn("Failed to reset conversation on logout", "error", err)
	}
	OK(w, nil)
}

// sessionFor returns a copy of the request's auth session, or a new one
// keyed by the browser session.
func sessionFor(ctx context.Context) *domain.AuthSession {
	if auth := identity.AuthFromContext(ctx); auth != nil {
		cp := *auth
		return &cp
	}
	return &domain.AuthSession{SessionID: identity.SessionIDFromContext(ctx)}
}

func newOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
