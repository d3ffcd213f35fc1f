package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model          string `json:"model"`
	Temperature    *float64
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestServer(t *testing.T, status int, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAIClient(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "test-model",
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{}, nil)
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestCompleteSendsTranscript(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, `{"recipient_name":"Alice"}`, &got)
	c := newTestClient(t, srv.URL)

	reply, err := c.Complete(t.Context(), Request{
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: "prompt"},
			{Role: domain.RoleUser, Content: "email alice"},
			{Role: domain.RoleAssistant, Content: "{}"},
			{Role: domain.RoleUser, Content: "about lunch"},
		},
		JSON:        true,
		Temperature: Temperature(0),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"recipient_name":"Alice"}`, reply)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "about lunch", got.Messages[3].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)
}

func TestCompleteWithoutJSONModeOmitsResponseFormat(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, "summary", &got)
	c := newTestClient(t, srv.URL)

	reply, err := c.Complete(t.Context(), Request{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "summary", reply)
	assert.Nil(t, got.ResponseFormat)
	assert.Nil(t, got.Temperature)
}

func TestCompleteReturnsServerError(t *testing.T) {
	srv := newTestServer(t, http.StatusBadRequest, "", nil)
	c := newTestClient(t, srv.URL)

	_, err := c.Complete(t.Context(), Request{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
}

func TestCompleteRejectsUnknownRole(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.Complete(t.Context(), Request{
		Messages: []domain.ChatMessage{{Role: "tool", Content: "x"}},
	})
	assert.ErrorIs(t, err, errUnknownRole)
}
