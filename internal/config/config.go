// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	LogLevel       string
	RequestTimeout time.Duration
	ServeFrontend  bool
	RateLimit      int // requests per minute per session on LLM-backed routes

	LLM        LLMConfig
	Google     GoogleConfig
	Credential CredentialConfig
	Scheduler  SchedulerConfig
	Mediator   MediatorConfig
}

// LLMConfig configures the text-generation and transcription clients.
type LLMConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
}

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// CredentialConfig selects where the credential sealing key comes from.
type CredentialConfig struct {
	Key             string // base64, 32 bytes; overrides the keyring
	KeyringDir      string
	KeyringPassword string
}

// SchedulerConfig tunes the deferred send poller.
type SchedulerConfig struct {
	PollInterval time.Duration
	TaskTimeout  time.Duration
}

// MediatorConfig bounds mediator memory use.
type MediatorConfig struct {
	SessionTTL  time.Duration
	MaxSessions int
	MaxTurns    int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("FRONTEND_URL", "")
	v.SetDefault("DB_PATH", "./data/mailpilot.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVE_FRONTEND", false)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)

	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("LLM_MODEL", "gpt-4.1-nano")
	v.SetDefault("TRANSCRIBE_MODEL", "whisper-1")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "")

	v.SetDefault("CREDENTIALS_KEY", "")
	v.SetDefault("KEYRING_DIR", "./data/keyring")
	v.SetDefault("KEYRING_PASSWORD", "")

	v.SetDefault("SCHEDULER_POLL_INTERVAL", 60*time.Second)
	v.SetDefault("SCHEDULER_TASK_TIMEOUT", 30*time.Second)

	v.SetDefault("MEDIATOR_SESSION_TTL", 2*time.Hour)
	v.SetDefault("MEDIATOR_MAX_SESSIONS", 10000)
	v.SetDefault("MEDIATOR_MAX_TURNS", 20)
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// is set, from that YAML file. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			slog.Info("Config file not found, using environment", "path", path)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:           v.GetString("PORT"),
		FrontendURL:    v.GetString("FRONTEND_URL"),
		DBPath:         v.GetString("DB_PATH"),
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		ServeFrontend:  v.GetBool("SERVE_FRONTEND"),
		RateLimit:      v.GetInt("RATE_LIMIT_PER_MINUTE"),
		LLM: LLMConfig{
			APIKey:          v.GetString("OPENAI_API_KEY"),
			BaseURL:         v.GetString("OPENAI_BASE_URL"),
			Model:           v.GetString("LLM_MODEL"),
			TranscribeModel: v.GetString("TRANSCRIBE_MODEL"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
		Credential: CredentialConfig{
			Key:             v.GetString("CREDENTIALS_KEY"),
			KeyringDir:      v.GetString("KEYRING_DIR"),
			KeyringPassword: v.GetString("KEYRING_PASSWORD"),
		},
		Scheduler: SchedulerConfig{
			PollInterval: v.GetDuration("SCHEDULER_POLL_INTERVAL"),
			TaskTimeout:  v.GetDuration("SCHEDULER_TASK_TIMEOUT"),
		},
		Mediator: MediatorConfig{
			SessionTTL:  v.GetDuration("MEDIATOR_SESSION_TTL"),
			MaxSessions: v.GetInt("MEDIATOR_MAX_SESSIONS"),
			MaxTurns:    v.GetInt("MEDIATOR_MAX_TURNS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("SCHEDULER_POLL_INTERVAL must be > 0")
	}
	if c.Scheduler.TaskTimeout <= 0 {
		return fmt.Errorf("SCHEDULER_TASK_TIMEOUT must be > 0")
	}
	if c.Mediator.SessionTTL <= 0 {
		return fmt.Errorf("MEDIATOR_SESSION_TTL must be > 0")
	}
	if c.Mediator.MaxSessions <= 0 {
		return fmt.Errorf("MEDIATOR_MAX_SESSIONS must be > 0")
	}
	if c.Mediator.MaxTurns <= 0 {
		return fmt.Errorf("MEDIATOR_MAX_TURNS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// GoogleEnabled reports whether the OAuth client is configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
