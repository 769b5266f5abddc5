// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Archive  ArchiveConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Export   ExportConfig
	Task     TaskConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds CSV upload processing settings.
type UploadConfig struct {
	// MaxFileSizeMB is the maximum allowed file size in megabytes (default: 100)
	MaxFileSizeMB int64 `env:"UPLOAD_MAX_FILE_SIZE_MB" default:"100"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is the number of rows to insert per batch (default: 1000)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" default:"1000"`

	// Timeout is the maximum duration for a single upload operation (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// ResetTimeout is the maximum duration for a reset operation (default: 30s)
	ResetTimeout time.Duration `env:"UPLOAD_RESET_TIMEOUT" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey gates every request behind one of APIKeys (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated set of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is the comma-separated CORS allowlist; empty denies
	// all cross-origin requests.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	// SecretKey guards the admin endpoints (rollback, task cancel, audit) when
	// set; requests must present it in the X-Admin-Token header.
	SecretKey string `env:"SECRET_KEY"`
}

// MaxFileSizeBytes returns the upload size cap in bytes.
func (c *UploadConfig) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// StorageConfig holds S3-compatible object storage settings for uploaded
// source files (aws-sdk-go-v2 service/s3 + feature/s3/manager).
type StorageConfig struct {
	// Provider names the S3-compatible backend (aws, minio, r2, ...), informational only.
	Provider string `env:"STORAGE_PROVIDER" default:"aws"`

	// Bucket is the bucket uploaded files and multipart sessions live in.
	Bucket string `env:"STORAGE_BUCKET_NAME" required:"true"`

	// EndpointURL overrides the default AWS endpoint for S3-compatible backends.
	EndpointURL string `env:"STORAGE_ENDPOINT_URL"`

	// AccessKeyID and SecretAccessKey are static credentials; empty means
	// fall back to the default AWS credential chain.
	AccessKeyID     string `env:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"STORAGE_SECRET_ACCESS_KEY"`

	// Region is the bucket's region.
	Region string `env:"STORAGE_REGION" default:"us-east-1"`

	// PresignTTL is how long a presigned upload/download URL remains valid (default: 15m)
	PresignTTL time.Duration `env:"STORAGE_PRESIGN_TTL" default:"15m"`

	// MultipartChunkMinBytes and MultipartChunkMaxBytes bound one part's size (5MB-100MB).
	MultipartChunkMinBytes int64 `env:"STORAGE_MULTIPART_CHUNK_MIN_BYTES" default:"5242880"`
	MultipartChunkMaxBytes int64 `env:"STORAGE_MULTIPART_CHUNK_MAX_BYTES" default:"104857600"`

	// MultipartMaxConcurrency bounds simultaneous part uploads (<=4).
	MultipartMaxConcurrency int `env:"STORAGE_MULTIPART_MAX_CONCURRENCY" default:"4"`

	// MultipartMaxRetries bounds retries per part (<=3).
	MultipartMaxRetries int `env:"STORAGE_MULTIPART_MAX_RETRIES" default:"3"`

	// AbandonedSessionAge is how long an inactive upload session may sit
	// before the sweep marks it aborted.
	AbandonedSessionAge time.Duration `env:"STORAGE_ABANDONED_SESSION_AGE" default:"24h"`
}

// LLMConfig holds settings for the Analyzer's bounded Bedrock agent.
type LLMConfig struct {
	// Region is the AWS region Bedrock is invoked in.
	Region string `env:"AWS_REGION" default:"us-east-1"`

	// ModelID is the Bedrock model identifier.
	ModelID string `env:"LLM_MODEL_ID" default:"anthropic.claude-3-sonnet-20240229-v1:0"`

	// DefaultMaxIterations and HardCapIterations bound the agent loop.
	DefaultMaxIterations int `env:"LLM_DEFAULT_MAX_ITERATIONS" default:"5"`
	HardCapIterations    int `env:"LLM_HARD_CAP_ITERATIONS" default:"10"`

	// AutoHighConfidenceThreshold is the confidence floor for auto_high mode.
	AutoHighConfidenceThreshold float64 `env:"LLM_AUTO_HIGH_CONFIDENCE_THRESHOLD" default:"0.9"`
}

// ExportConfig holds settings for the query export endpoint.
type ExportConfig struct {
	// TimeoutSeconds is the export endpoint's soft budget (default: 120).
	TimeoutSeconds int `env:"EXPORT_TIMEOUT_SECONDS" default:"120"`

	// RowLimit caps how many rows one export may stream (default: 100000).
	RowLimit int `env:"EXPORT_ROW_LIMIT" default:"100000"`
}

// Timeout returns the export budget as a duration.
func (c *ExportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TaskConfig holds settings for the async Task Manager worker.
type TaskConfig struct {
	// PollInterval is how often an idle worker polls import_jobs for pending work.
	PollInterval time.Duration `env:"TASK_POLL_INTERVAL" default:"2s"`

	// SyncRowLimit is the row count above which an import must go async.
	SyncRowLimit int `env:"TASK_SYNC_ROW_LIMIT" default:"50000"`

	// SyncTimeout is the soft budget for a synchronous import request.
	SyncTimeout time.Duration `env:"TASK_SYNC_TIMEOUT" default:"30s"`
}

// CacheConfig holds settings for the process-wide parse cache
// (internal/parsecache).
type CacheConfig struct {
	// RedisURL is the go-redis connection string. Empty disables the cache
	// (a NullCache is used instead, and every parse is a cache miss).
	RedisURL string `env:"PARSE_CACHE_REDIS_URL"`

	// TTL is how long a cached parse result remains valid (default: 5m).
	TTL time.Duration `env:"PARSE_CACHE_TTL" default:"5m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ArchiveConfig holds audit log archiving settings.
type ArchiveConfig struct {
	// HotRetentionDays is days to keep entries in the hot table (default: 90)
	HotRetentionDays int `env:"ARCHIVE_HOT_RETENTION_DAYS" default:"90"`

	// ArchiveRetentionYears is years to keep archived entries (default: 7)
	ArchiveRetentionYears int `env:"ARCHIVE_RETENTION_YEARS" default:"7"`

	// BatchSize is rows to process per archive batch (default: 5000)
	BatchSize int `env:"ARCHIVE_BATCH_SIZE" default:"5000"`

	// CheckInterval is how often to run the archive job (default: 24h)
	CheckInterval time.Duration `env:"ARCHIVE_CHECK_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
