package transcribe

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	model    string
	filename string
	data     string
}

func newServer(t *testing.T, status int, got *upload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		if got != nil {
			got.model = r.FormValue("model")
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			b, err := io.ReadAll(f)
			require.NoError(t, err)
			got.filename = hdr.Filename
			got.data = string(b)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"text":"  email my manager about the report  "}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTranscriber(t *testing.T, baseURL string) *OpenAITranscriber {
	t.Helper()
	tr, err := NewOpenAITranscriber(Config{APIKey: "test-key", BaseURL: baseURL}, nil)
	require.NoError(t, err)
	return tr
}

func TestTranscribe(t *testing.T) {
	var got upload
	srv := newServer(t, http.StatusOK, &got)

	text, err := newTranscriber(t, srv.URL).Transcribe(t.Context(), "voice.webm", strings.NewReader("RIFFDATA"))
	require.NoError(t, err)
	assert.Equal(t, "email my manager about the report", text)
	assert.Equal(t, "whisper-1", got.model)
	assert.Equal(t, "voice.webm", got.filename)
	assert.Equal(t, "RIFFDATA", got.data)
}

func TestTranscribeEmptyAudioIsValidationError(t *testing.T) {
	srv := newServer(t, http.StatusOK, nil)
	_, err := newTranscriber(t, srv.URL).Transcribe(t.Context(), "voice.webm", strings.NewReader(""))
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestTranscribeFailureIsTranscriptionError(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, nil)
	_, err := newTranscriber(t, srv.URL).Transcribe(t.Context(), "voice.webm", strings.NewReader("RIFF"))
	assert.Equal(t, shared.KindTranscription, shared.KindOf(err))
}

func TestNewOpenAITranscriberRequiresKey(t *testing.T) {
	_, err := NewOpenAITranscriber(Config{}, nil)
	assert.ErrorIs(t, err, errMissingAPIKey)
}
