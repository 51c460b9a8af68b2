package constants

// Default cache configuration values
const (
	DefaultAdapterCacheTTLMin = 10
	DefaultAgentCacheTTLMin   = 30
	DefaultEventCacheTTLMin   = 10
	DefaultCacheMaxEntries    = 1000
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 500
	DefaultMaxBackoffMs          = 30000
	DefaultMaxSendAttempts       = 3
	DefaultDatabaseRetryAttempts = 3
	DefaultRetentionDays         = 30
)

// Default server configuration values
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default outbound call timeouts
const (
	DefaultHTTPTimeoutSec   = 30
	DefaultUploadTimeoutSec = 120
	DefaultChatTimeoutSec   = 30
)

// Default attachment pipeline values
const (
	DefaultPipelineMaxConcurrent = 4
	DefaultMaxImageSizeMB        = 5
	DefaultMaxVideoSizeMB        = 100
	DefaultMaxFileSizeMB         = 100
	MaxFilenameLength            = 255
)
