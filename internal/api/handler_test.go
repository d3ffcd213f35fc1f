//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/ashureev/mailpilot/internal/credential"
	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/identity"
	"github.com/ashureev/mailpilot/internal/mailprovider"
	"github.com/ashureev/mailpilot/internal/scheduler"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionID = "sess_0123456789abcdef0123456789abcdef"

var testKey = testSessionID + ":" + identity.DefaultConversationID

// --- fakes ---

type fakeAuthStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.AuthSession
	users    map[string]*domain.User
	err      error
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		sessions: map[string]*domain.AuthSession{},
		users:    map[string]*domain.User{},
	}
}

func (f *fakeAuthStore) UpsertUser(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *u
	f.users[u.Email] = &cp
	return nil
}

func (f *fakeAuthStore) GetUser(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[email], f.err
}

func (f *fakeAuthStore) GetAuthSession(_ context.Context, id string) (*domain.AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], f.err
}

func (f *fakeAuthStore) UpsertAuthSession(_ context.Context, s *domain.AuthSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *s
	f.sessions[s.SessionID] = &cp
	return nil
}

func (f *fakeAuthStore) DeleteAuthSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.sessions, id)
	return nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeProvider struct {
	mu sync.Mutex

	exchanged *domain.Credentials
	info      *mailprovider.UserInfo
	sent      []*domain.OutgoingMessage
	drafts    []*domain.OutgoingMessage
	listOpts  []mailprovider.ListOptions
	marked    []string
	markErr   error
	err       error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*domain.Credentials, error) {
	if code == "" {
		return nil, shared.Validation("fake.exchange", "missing code")
	}
	return f.exchanged, f.err
}

func (f *fakeProvider) UserInfo(context.Context, *domain.Credentials) (*mailprovider.UserInfo, error) {
	return f.info, f.err
}

func (f *fakeProvider) CreateDraft(_ context.Context, _ *domain.Credentials, msg *domain.OutgoingMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.drafts = append(f.drafts, msg)
	return fmt.Sprintf("draft-%d", len(f.drafts)), nil
}

func (f *fakeProvider) SendDraft(context.Context, *domain.Credentials, string) (string, error) {
	return "sent-draft", f.err
}

func (f *fakeProvider) Send(_ context.Context, _ *domain.Credentials, msg *domain.OutgoingMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

func (f *fakeProvider) ListMessages(_ context.Context, _ *domain.Credentials, opts mailprovider.ListOptions) (*domain.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = append(f.listOpts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.MessagePage{
		Messages:      []domain.MessageSummary{{ID: "m1", Subject: "Hello", IsUnread: true}},
		NextPageToken: "next",
	}, nil
}

func (f *fakeProvider) GetMessage(_ context.Context, _ *domain.Credentials, id string) (*domain.MessageDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.MessageDetail{ID: id, Subject: "Hello", Body: "<p>hi</p>", IsHTML: true}, nil
}

func (f *fakeProvider) MarkRead(_ context.Context, _ *domain.Credentials, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return f.markErr
}

func (f *fakeProvider) GetAttachment(context.Context, *domain.Credentials, string, string) (*mailprovider.AttachmentData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &mailprovider.AttachmentData{Data: []byte("%PDF-1.4")}, nil
}

func (f *fakeProvider) SearchContacts(context.Context, *domain.Credentials, string) ([]domain.Contact, error) {
	return nil, f.err
}

type fakeMediator struct {
	mu     sync.Mutex
	state  domain.SlotState
	inputs []string
	keys   []string
	resets []string
	err    error
}

func (f *fakeMediator) Advance(_ context.Context, key, utterance string) (domain.SlotState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.inputs = append(f.inputs, utterance)
	return f.state, f.err
}

func (f *fakeMediator) CurrentState(context.Context, string) domain.SlotState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeMediator) Context(context.Context, string) domain.ComposeContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Context()
}

func (f *fakeMediator) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, key)
	f.state = domain.SlotState{}
	return nil
}

type generateCall struct {
	key, description, revision string
}

type fakeGenerator struct {
	calls  []generateCall
	resets []string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, key, description, revision string) (*domain.Draft, error) {
	f.calls = append(f.calls, generateCall{key, description, revision})
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Draft{Subject: "Lunch", Body: "Hi Alice"}, nil
}

func (f *fakeGenerator) Reset(key string) { f.resets = append(f.resets, key) }

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	if text == "" {
		return "", shared.Validation("fake.summarize", "text is required")
	}
	return "short: " + text, nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	enqueued  []scheduler.EnqueueRequest
	tasks     []*domain.ScheduledSendTask
	cancelErr error
	cancelled []string
	alive     bool
}

func (f *fakeScheduler) Enqueue(_ context.Context, req scheduler.EnqueueRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, req)
	return "task-1", nil
}

func (f *fakeScheduler) ListScheduled(context.Context, string) ([]*domain.ScheduledSendTask, error) {
	return f.tasks, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

func (f *fakeScheduler) Status(context.Context) (*scheduler.Status, error) {
	return &scheduler.Status{Running: f.alive, PollInterval: "1m0s", Counts: map[string]int{"pending": len(f.tasks)}}, nil
}

func (f *fakeScheduler) Health(context.Context) (*scheduler.Health, error) {
	return &scheduler.Health{Alive: f.alive, PollInterval: "1m0s", QueueDepth: len(f.tasks)}, nil
}

type relationCall struct {
	owner, recipient, relation string
}

type fakeContacts struct {
	results   []domain.Contact
	err       error
	relations []relationCall
	creds     []*domain.Credentials
}

func (f *fakeContacts) Search(_ context.Context, _ string, creds *domain.Credentials, query string) ([]domain.Contact, error) {
	f.creds = append(f.creds, creds)
	if len(query) < 2 {
		return []domain.Contact{}, nil
	}
	return f.results, f.err
}

func (f *fakeContacts) RecordRelation(_ context.Context, owner, recipient, relation string) {
	f.relations = append(f.relations, relationCall{owner, recipient, relation})
}

type fakeTranscriber struct {
	got []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	f.got = data
	return "hello there", nil
}

// --- harness ---

type testEnv struct {
	auth        *fakeAuthStore
	provider    *fakeProvider
	sealer      *credential.Sealer
	mediator    *fakeMediator
	generator   *fakeGenerator
	scheduler   *fakeScheduler
	contacts    *fakeContacts
	transcriber *fakeTranscriber
	pinger      fakePinger
	limit       func(http.Handler) http.Handler

	session *domain.AuthSession
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sealer, err := credential.NewSealer(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	return &testEnv{
		auth:        newFakeAuthStore(),
		provider:    &fakeProvider{},
		sealer:      sealer,
		mediator:    &fakeMediator{},
		generator:   &fakeGenerator{},
		scheduler:   &fakeScheduler{alive: true},
		contacts:    &fakeContacts{},
		transcriber: &fakeTranscriber{},
	}
}

func testCreds() *domain.Credentials {
	return &domain.Credentials{AccessToken: "ya29.token", RefreshToken: "1//refresh", ClientID: "cid"}
}

// signIn attaches an authenticated auth session to every request.
func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	sealed, err := e.sealer.Seal(testCreds())
	require.NoError(t, err)
	e.session = &domain.AuthSession{
		SessionID:         testSessionID,
		OwnerEmail:        "owner@example.com",
		OwnerName:         "Olivia Owner",
		SealedCredentials: sealed,
	}
}

func (e *testEnv) router() http.Handler {
	h := NewHandler(Deps{
		Auth:        e.auth,
		Pinger:      e.pinger,
		Provider:    e.provider,
		Sealer:      e.sealer,
		Mediator:    e.mediator,
		Generator:   e.generator,
		Summarizer:  fakeSummarizer{},
		Scheduler:   e.scheduler,
		Contacts:    e.contacts,
		Transcriber: e.transcriber,
		FrontendURL: "http://localhost:5173",
	})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := identity.WithSession(req.Context(), testSessionID, identity.DefaultConversationID, e.session)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.RegisterRoutes(r, e.limit)
	return r
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router().ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got), w.Body.String())
	return got
}

func strPtr(s string) *string { return &s }

// --- envelope ---

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

func TestFailMapsKindsToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"auth", shared.AuthRequired("op", nil), http.StatusUnauthorized, "authentication required"},
		{"validation", shared.Validation("op", "bad input"), http.StatusBadRequest, "bad input"},
		{"not found", shared.E(shared.KindNotFound, "op", "gone", nil), http.StatusNotFound, "gone"},
		{"generation", shared.Generation("op", errors.New("x")), http.StatusBadGateway, "text generation failed"},
		{"provider", shared.Provider("op", errors.New("x")), http.StatusBadGateway, "mail provider request failed"},
		{"search", shared.E(shared.KindSearch, "op", "contact search failed", nil), http.StatusBadGateway, "contact search failed"},
		{"transcription", shared.E(shared.KindTranscription, "op", "transcription failed", nil), http.StatusBadGateway, "transcription failed"},
		{"store", shared.Store("op", errors.New("locked")), http.StatusInternalServerError, "store unavailable"},
		{"unclassified", errors.New("secret detail"), http.StatusInternalServerError, "internal error"},
	}

	h := NewHandler(Deps{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Fail(w, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)

			assert.Equal(t, tt.code, w.Code)
			got := decode(t, w)
			assert.Equal(t, false, got["success"])
			assert.Equal(t, tt.msg, got["error"])
		})
	}
}

func TestFailDeadlineIsRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	err := shared.Generation("op", fmt.Errorf("call: %w", context.DeadlineExceeded))
	NewHandler(Deps{}).Fail(w, httptest.NewRequest(http.MethodGet, "/x", nil), err)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	got := decode(t, w)
	assert.Equal(t, true, got["retryable"])
}

func TestOKMergesPayload(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, map[string]interface{}{"id": "m1"})

	got := decode(t, w)
	assert.Equal(t, true, got["success"])
	assert.Equal(t, "m1", got["id"])
}

// --- health ---

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "healthy", got["status"])
	checks := got["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "ok", checks["scheduler"])
}

func TestHealthDegradedWhenStoreDown(t *testing.T) {
	e := newTestEnv(t)
	e.pinger = fakePinger{err: errors.New("database is locked")}
	e.scheduler.alive = false

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	got := decode(t, w)
	assert.Equal(t, "degraded", got["status"])
	checks := got["checks"].(map[string]interface{})
	assert.Equal(t, "unreachable", checks["database"])
	assert.Equal(t, "stopped", checks["scheduler"])
}
