// Package identity provides browser session identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/store"
)

const (
	SessionCookieName     = "mailpilot_session"
	ConversationHeader    = "X-Mailpilot-Session-ID"
	DefaultConversationID = "default"
	sessionCookieMaxAge   = 30 * 24 * time.Hour
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	conversationIDKey
	authSessionKey
)

var (
	sessionIDPattern      = regexp.MustCompile(`^sess_[a-f0-9]{32}$`)
	conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// SessionIDFromContext returns the browser session id.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// ConversationIDFromContext returns the per-tab conversation id.
func ConversationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(conversationIDKey).(string); ok {
		return v
	}
	return DefaultConversationID
}

// ConversationKey scopes a conversation to its browser session, so two
// browsers never share mediator state.
func ConversationKey(ctx context.Context) string {
	return SessionIDFromContext(ctx) + ":" + ConversationIDFromContext(ctx)
}

// AuthFromContext returns the stored auth session, or nil when the browser
// has none yet.
func AuthFromContext(ctx context.Context) *domain.AuthSession {
	if v, ok := ctx.Value(authSessionKey).(*domain.AuthSession); ok {
		return v
	}
	return nil
}

// OwnerFromContext returns the signed-in account email, or "".
func OwnerFromContext(ctx context.Context) string {
	if a := AuthFromContext(ctx); a.Authenticated() {
		return a.OwnerEmail
	}
	return ""
}

// WithSession returns ctx carrying the given identity. Intended for tests and
// internal callers that bypass the middleware.
func WithSession(ctx context.Context, sessionID, conversationID string, auth *domain.AuthSession) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, conversationIDKey, sanitizeConversationID(conversationID))
	return context.WithValue(ctx, authSessionKey, auth)
}

func generateSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return "sess_" + hex.EncodeToString(buf), nil
}

func isValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func sanitizeConversationID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !conversationIDPattern.MatchString(id) {
		return DefaultConversationID
	}
	return id
}

func setSessionCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(sessionCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateSessionID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(SessionCookieName); err == nil && isValidSessionID(c.Value) {
		setSessionCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	setSessionCookie(w, id, isDev)
	return id, nil
}

func conversationIDFromRequest(r *http.Request) string {
	id := r.Header.Get(ConversationHeader)
	if id == "" {
		id = r.URL.Query().Get("session_id")
	}
	return sanitizeConversationID(id)
}

// Middleware establishes the browser session cookie and loads its auth
// session, if any.
func Middleware(auth store.AuthStore, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := getOrCreateSessionID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"success":false,"error":"failed to establish session"}`, http.StatusInternalServerError)
				return
			}

			sess, err := auth.GetAuthSession(r.Context(), sessionID)
			if err != nil {
				slog.Error("Failed to load auth session", "session_id", sessionID, "error", err)
				http.Error(w, `{"success":false,"error":"failed to load session"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithSession(r.Context(), sessionID, conversationIDFromRequest(r), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
