package config

import (
	"os"
	"path/filepath"
	"testing"

	"deskbridge/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()

	validConfig := `{
		"server": {
			"port": 9090,
			"chat_webhook_secret": "secret123"
		},
		"chat": {
			"service_url": "https://chat.example.com",
			"app_id": "app-1",
			"app_secret": "app-secret"
		},
		"relay": {
			"base_url": "https://relay.example.com",
			"api_key": "relay-key"
		},
		"database": {
			"path": "/path/to/db.sqlite"
		},
		"retry": {
			"initialBackoffMs": 1000,
			"maxBackoffMs": 5000,
			"maxAttempts": 3
		},
		"retentionDays": 14
	}`
	validPath := writeConfig(t, tmpDir, "valid_config.json", validConfig)

	cfg, err := LoadConfig(validPath)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://chat.example.com", cfg.Chat.ServiceURL)
	assert.Equal(t, "https://relay.example.com", cfg.Relay.BaseURL)
	assert.Equal(t, 1000, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 14, cfg.RetentionDays)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	minimalConfig := `{
		"chat": {"service_url": "https://chat.example.com"},
		"relay": {"base_url": "https://relay.example.com"},
		"database": {"path": "/path/to/db.sqlite"}
	}`
	path := writeConfig(t, tmpDir, "minimal.json", minimalConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultAdapterCacheTTLMin, cfg.Cache.AdapterTTLMin)
	assert.Equal(t, constants.DefaultAgentCacheTTLMin, cfg.Cache.AgentTTLMin)
	assert.Equal(t, constants.DefaultPipelineMaxConcurrent, cfg.Pipeline.MaxConcurrent)
	assert.Equal(t, constants.DefaultMaxImageSizeMB, cfg.Pipeline.MaxSizeMB.Image)
	assert.Equal(t, constants.DefaultMaxSendAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, constants.DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing chat service URL",
			content: `{"relay": {"base_url": "https://r"}, "database": {"path": "/db"}}`,
			wantErr: ErrMissingChatServiceURL,
		},
		{
			name:    "missing relay URL",
			content: `{"chat": {"service_url": "https://c"}, "database": {"path": "/db"}}`,
			wantErr: ErrMissingRelayURL,
		},
		{
			name:    "missing database path",
			content: `{"chat": {"service_url": "https://c"}, "relay": {"base_url": "https://r"}}`,
			wantErr: ErrMissingDBPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tmpDir, "cfg.json", tt.content)
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()

	content := `{
		"chat": {"service_url": "https://file.example.com"},
		"relay": {"base_url": "https://relay.example.com"},
		"database": {"path": "/path/to/db.sqlite"}
	}`
	path := writeConfig(t, tmpDir, "cfg.json", content)

	t.Setenv("DESKBRIDGE_CHAT_SERVICE_URL", "https://env.example.com")
	t.Setenv("DESKBRIDGE_CHAT_WEBHOOK_SECRET", "env-webhook-secret")
	t.Setenv("DESKBRIDGE_DB_PATH", "/env/db.sqlite")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Chat.ServiceURL)
	assert.Equal(t, "env-webhook-secret", cfg.Server.ChatWebhookSecret)
	assert.Equal(t, "/env/db.sqlite", cfg.Database.Path)
}

func TestLoadConfigProductionSecurity(t *testing.T) {
	tmpDir := t.TempDir()

	content := `{
		"chat": {"service_url": "https://chat.example.com"},
		"relay": {"base_url": "https://relay.example.com"},
		"database": {"path": "/path/to/db.sqlite"}
	}`
	path := writeConfig(t, tmpDir, "cfg.json", content)

	t.Setenv("DESKBRIDGE_ENV", "production")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook secret is required")

	t.Setenv("DESKBRIDGE_CHAT_WEBHOOK_SECRET", "short")
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")

	t.Setenv("DESKBRIDGE_CHAT_WEBHOOK_SECRET", "a-very-long-webhook-secret-value-0123456789")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "a-very-long-webhook-secret-value-0123456789", cfg.Server.ChatWebhookSecret)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("nonexistent file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(tmpDir, "nope.json"))
		assert.Error(t, err)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		path := writeConfig(t, tmpDir, "bad.json", `{"chat": `)
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := LoadConfig("../../etc/passwd")
		assert.Error(t, err)
	})
}
