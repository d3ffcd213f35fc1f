package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/observability"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

var (
	errMissingAPIKey = errors.New("OPENAI_API_KEY is not set")
	errNoChoices     = errors.New("completion returned no choices")
	errUnknownRole   = errors.New("unknown transcript role")
)

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxRetries     int
	RequestTimeout time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Model:          "gpt-4.1-nano",
		MaxRetries:     2,
		RequestTimeout: 60 * time.Second,
	}
}

// OpenAIClient implements Completer over the chat-completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a chat-completions client. Zero fields of cfg fall
// back to DefaultConfig.
func NewOpenAIClient(cfg Config, logger *slog.Logger) (*OpenAIClient, error) {
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
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	return &OpenAIClient{
		client: openai.NewClient(clientOptions(cfg)...),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

func clientOptions(cfg Config) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.RequestTimeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends the transcript and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages, err := toParams(req.Messages)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    shared.ChatModel(c.model),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		observability.RecordLLMCall("complete", c.model, "error", elapsed)
		c.logger.Warn("Chat completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		observability.RecordLLMCall("complete", c.model, "error", elapsed)
		return "", errNoChoices
	}

	observability.RecordLLMCall("complete", c.model, "success", elapsed)
	c.logger.Debug("Chat completion finished",
		"model", c.model,
		"messages", len(req.Messages),
		"duration_ms", elapsed,
	)
	return completion.Choices[0].Message.Content, nil
}

func toParams(msgs []domain.ChatMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("%w: %q", errUnknownRole, m.Role)
		}
	}
	return out, nil
}
