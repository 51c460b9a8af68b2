package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig   `json:"server"`
	Database      DatabaseConfig `json:"database"`
	Chat          ChatConfig     `json:"chat"`
	Relay         RelayConfig    `json:"relay"`
	Cache         CacheConfig    `json:"cache"`
	Pipeline      PipelineConfig `json:"pipeline"`
	Retry         RetryConfig    `json:"retry"`
	Events        EventsConfig   `json:"events"`
	Tracing       TracingConfig  `json:"tracing"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retentionDays"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port              int    `json:"port"`
	ReadTimeoutSec    int    `json:"readTimeoutSec"`
	WriteTimeoutSec   int    `json:"writeTimeoutSec"`
	IdleTimeoutSec    int    `json:"idleTimeoutSec"`
	ChatWebhookSecret string `json:"chat_webhook_secret"`
}

// ChatConfig holds chat-platform (bot service) related configurations
type ChatConfig struct {
	ServiceURL string `json:"service_url"`
	AppID      string `json:"app_id"`
	AppSecret  string `json:"app_secret"`
	TimeoutSec int    `json:"timeoutSec"`
}

// RelayConfig holds blob relay related configurations
type RelayConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	TimeoutSec int    `json:"timeoutSec"`
}

// CacheConfig holds the TTLs for the bridge's in-memory caches
type CacheConfig struct {
	AdapterTTLMin int `json:"adapterTTLMin"`
	AgentTTLMin   int `json:"agentTTLMin"`
	EventTTLMin   int `json:"eventTTLMin"`
	MaxEntries    int `json:"maxEntries"`
}

// PipelineConfig holds attachment pipeline configurations
type PipelineConfig struct {
	MaxConcurrent    int             `json:"maxConcurrent"`
	MaxSizeMB        MediaSizeLimits `json:"maxSizeMB"`
	UploadTimeoutSec int             `json:"uploadTimeoutSec"`
}

// MediaSizeLimits defines size limits for different media categories in MB
type MediaSizeLimits struct {
	Image int `json:"image"`
	Video int `json:"video"`
	File  int `json:"file"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// EventsConfig holds delivery-receipt publishing configurations
type EventsConfig struct {
	Enabled  bool   `json:"enabled"`
	AMQPURL  string `json:"amqp_url"`
	Exchange string `json:"exchange"`
}

// TracingConfig holds OpenTelemetry related configurations
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
