// Package transcribe turns recorded voice input into text.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/mailpilot/internal/observability"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// maxAudioBytes bounds an uploaded recording.
const maxAudioBytes = 25 << 20

var errMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Config holds configuration for the transcription client.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Model:          "whisper-1",
		RequestTimeout: 120 * time.Second,
	}
}

// OpenAITranscriber implements Transcriber over the audio transcription API.
type OpenAITranscriber struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

var _ Transcriber = (*OpenAITranscriber)(nil)

// NewOpenAITranscriber creates a transcription client.
func NewOpenAITranscriber(cfg Config, logger *slog.Logger) (*OpenAITranscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, errMissingAPIKey
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.RequestTimeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAITranscriber{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Transcribe uploads the recording and returns its trimmed text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	const op = "transcribe"

	data, err := io.ReadAll(io.LimitReader(audio, maxAudioBytes+1))
	if err != nil {
		return "", shared.E(shared.KindTranscription, op, "failed to read audio", err)
	}
	if len(data) == 0 {
		return "", shared.Validation(op, "no audio file")
	}
	if len(data) > maxAudioBytes {
		return "", shared.Validation(op, "audio file too large")
	}
	if filename == "" {
		filename = "recording.webm"
	}

	start := time.Now()
	res, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(data), filename, contentType(filename)),
		Model: openai.AudioModel(t.model),
	})
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		observability.RecordLLMCall("transcribe", t.model, "error", elapsed)
		t.logger.Warn("Transcription failed", "model", t.model, "error", err)
		return "", shared.E(shared.KindTranscription, op, "transcription failed", err)
	}

	observability.RecordLLMCall("transcribe", t.model, "success", elapsed)
	t.logger.Debug("Transcription finished", "model", t.model, "bytes", len(data), "duration_ms", elapsed)
	return strings.TrimSpace(res.Text), nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
