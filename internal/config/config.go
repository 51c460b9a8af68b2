package config

import (
	"encoding/json"
	"fmt"
	"os"

	"deskbridge/internal/constants"
	"deskbridge/internal/models"
	"deskbridge/internal/security"
)

var (
	ErrMissingChatServiceURL = models.ConfigError{Message: "missing chat service URL"}
	ErrMissingRelayURL       = models.ConfigError{Message: "missing blob relay base URL"}
	ErrMissingDBPath         = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidatePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidatePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Chat.ServiceURL == "" {
		return ErrMissingChatServiceURL
	}
	if c.Relay.BaseURL == "" {
		return ErrMissingRelayURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Chat.TimeoutSec <= 0 {
		c.Chat.TimeoutSec = constants.DefaultChatTimeoutSec
	}
	if c.Relay.TimeoutSec <= 0 {
		c.Relay.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}

	if c.Cache.AdapterTTLMin <= 0 {
		c.Cache.AdapterTTLMin = constants.DefaultAdapterCacheTTLMin
	}
	if c.Cache.AgentTTLMin <= 0 {
		c.Cache.AgentTTLMin = constants.DefaultAgentCacheTTLMin
	}
	if c.Cache.EventTTLMin <= 0 {
		c.Cache.EventTTLMin = constants.DefaultEventCacheTTLMin
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = constants.DefaultCacheMaxEntries
	}

	if c.Pipeline.MaxConcurrent <= 0 {
		c.Pipeline.MaxConcurrent = constants.DefaultPipelineMaxConcurrent
	}
	if c.Pipeline.MaxSizeMB.Image <= 0 {
		c.Pipeline.MaxSizeMB.Image = constants.DefaultMaxImageSizeMB
	}
	if c.Pipeline.MaxSizeMB.Video <= 0 {
		c.Pipeline.MaxSizeMB.Video = constants.DefaultMaxVideoSizeMB
	}
	if c.Pipeline.MaxSizeMB.File <= 0 {
		c.Pipeline.MaxSizeMB.File = constants.DefaultMaxFileSizeMB
	}
	if c.Pipeline.UploadTimeoutSec <= 0 {
		c.Pipeline.UploadTimeoutSec = constants.DefaultUploadTimeoutSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxSendAttempts
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("DESKBRIDGE_CHAT_SERVICE_URL"); url != "" {
		c.Chat.ServiceURL = url
	}
	if secret := os.Getenv("DESKBRIDGE_CHAT_APP_SECRET"); secret != "" {
		c.Chat.AppSecret = secret
	}

	// SECURITY: Webhook secrets should be set via environment variables
	if secret := os.Getenv("DESKBRIDGE_CHAT_WEBHOOK_SECRET"); secret != "" {
		c.Server.ChatWebhookSecret = secret
	}

	if url := os.Getenv("DESKBRIDGE_RELAY_URL"); url != "" {
		c.Relay.BaseURL = url
	}
	if key := os.Getenv("DESKBRIDGE_RELAY_API_KEY"); key != "" {
		c.Relay.APIKey = key
	}

	if path := os.Getenv("DESKBRIDGE_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if url := os.Getenv("DESKBRIDGE_AMQP_URL"); url != "" {
		c.Events.AMQPURL = url
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("DESKBRIDGE_ENV") == "production"

	if isProduction {
		// In production, the chat webhook secret is mandatory
		if c.Server.ChatWebhookSecret == "" {
			return models.ConfigError{Message: "chat webhook secret is required in production (set DESKBRIDGE_CHAT_WEBHOOK_SECRET environment variable)"}
		}
		if len(c.Server.ChatWebhookSecret) < 32 {
			return models.ConfigError{Message: "chat webhook secret must be at least 32 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.Server.ChatWebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: chat webhook secret not set. Set DESKBRIDGE_CHAT_WEBHOOK_SECRET environment variable for security.\n")
		}
	}

	return nil
}
