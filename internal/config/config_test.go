package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.AIProvider)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 1000, cfg.MaxOutputTokens)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.True(t, cfg.VerifySessionOwner)
	assert.False(t, cfg.PersistPartial)
	assert.Equal(t, "chat_persist", cfg.RabbitQueue)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("CHAT_TEMPERATURE", "0.2")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "45s")
	t.Setenv("CHAT_PERSIST_PARTIAL", "true")
	t.Setenv("CHAT_VERIFY_SESSION_OWNER", "false")
	t.Setenv("DB_DSN", "sqlite://file::memory:")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AIProvider)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.PersistPartial)
	assert.False(t, cfg.VerifySessionOwner)
	assert.Equal(t, "sqlite://file::memory:", cfg.DBDSN)
}

func TestValidate(t *testing.T) {
	cfg := Config{DBDSN: "x", Temperature: 1.7, MaxOutputTokens: 10, RequestTimeout: time.Second, WorkerConcurrency: 500}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1.0, cfg.Temperature)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)

	cfg = Config{DBDSN: "x", MaxOutputTokens: 0, RequestTimeout: time.Second}
	assert.Error(t, cfg.Validate())

	cfg = Config{DBDSN: "x", MaxOutputTokens: 10}
	assert.Error(t, cfg.Validate())

	cfg = Config{MaxOutputTokens: 10, RequestTimeout: time.Second}
	assert.Error(t, cfg.Validate())
}
