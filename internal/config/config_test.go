package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, "gpt-4.1-nano", cfg.LLM.Model)
	assert.Equal(t, 20, cfg.Mediator.MaxTurns)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.GoogleEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SCHEDULER_POLL_INTERVAL", "5s")
	t.Setenv("FRONTEND_URL", "https://mail.example.com")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/custom.db\nmediator_max_turns: 4\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.Mediator.MaxTurns)
}

func TestLoadMissingConfigFileFallsBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "./data/mailpilot.db", cfg.DBPath)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")
	_, err := Load()
	assert.ErrorContains(t, err, "LOG_LEVEL")
}
