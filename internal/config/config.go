// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/medilens/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Server ServerConfig

	// AI provider configuration
	AI AIConfig

	// Outbound call policy
	Orchestrator OrchestratorConfig

	// Report text processing configuration
	Processing ProcessingConfig

	// Report and chat persistence
	Store StoreConfig

	// Upload archive
	Archive ArchiveConfig

	// Logging sinks
	Logging LoggingConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP port to listen on.
	Port string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// MaxUploadBytes caps the size of an uploaded report file.
	MaxUploadBytes int64
}

// AIProvider represents the AI provider to use.
type AIProvider string

const (
	// AIProviderOpenAI uses OpenAI-compatible API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGemini uses Google Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// AIConfig contains AI provider settings.
type AIConfig struct {
	// Provider specifies which AI provider to use (gemini, openai).
	Provider AIProvider

	// APIKey is the authentication key for the AI provider.
	APIKey string

	// BaseURL is the base URL for the AI API (optional, provider-specific defaults).
	BaseURL string

	// Model is the AI model to use.
	Model string

	// Timeout bounds a single outbound HTTP call.
	Timeout time.Duration

	// MaxTokens is the maximum tokens for AI response.
	MaxTokens int

	// MockMode enables canned responses for running without API calls.
	MockMode bool
}

// OrchestratorConfig controls throttling and retries of provider calls.
type OrchestratorConfig struct {
	// MinInterval is the minimum time between the starts of two provider calls.
	MinInterval time.Duration

	// MaxAttempts is the number of attempts per logical call.
	MaxAttempts int

	// RetryBaseDelay is multiplied by the attempt number between attempts.
	RetryBaseDelay time.Duration

	// RedisURL, when set, shares the throttle window across processes.
	RedisURL string
}

// ProcessingConfig contains report text processing settings.
type ProcessingConfig struct {
	// MaxContentSize is the maximum number of bytes sent to the provider.
	MaxContentSize int

	// MaskPII masks personal identifiers before text leaves the process.
	MaskPII bool
}

// StoreConfig selects the database backing reports and chat history.
type StoreConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string

	// DSN is the driver-specific data source name.
	DSN string
}

// ArchiveConfig configures the optional S3 archive for uploads.
type ArchiveConfig struct {
	Bucket string
	Region string
}

// Enabled reports whether uploads should be archived.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// LoggingConfig configures the optional rotating log file.
type LoggingConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Determine AI provider
	provider := AIProvider(getEnvOrDefault("AI_PROVIDER", "gemini"))

	// Set provider-specific defaults
	var defaultBaseURL, defaultModel string
	switch provider {
	case AIProviderOpenAI:
		defaultBaseURL = "https://api.openai.com/v1"
		defaultModel = "gpt-4o-mini"
	default:
		provider = AIProviderGemini
		defaultBaseURL = "https://generativelanguage.googleapis.com"
		defaultModel = "gemini-1.5-flash"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvOrDefault("PORT", "8080"),
			ReadTimeout:    getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationOrDefault("SERVER_WRITE_TIMEOUT", 0),
			MaxUploadBytes: int64(getIntOrDefault("MAX_UPLOAD_BYTES", 10<<20)),
		},
		AI: AIConfig{
			Provider:  provider,
			APIKey:    os.Getenv("AI_API_KEY"),
			BaseURL:   getEnvOrDefault("AI_BASE_URL", defaultBaseURL),
			Model:     getEnvOrDefault("AI_MODEL", defaultModel),
			Timeout:   getDurationOrDefault("AI_TIMEOUT", 30*time.Second),
			MaxTokens: getIntOrDefault("AI_MAX_TOKENS", 2048),
			MockMode:  getBoolOrDefault("AI_MOCK_MODE", false),
		},
		Orchestrator: OrchestratorConfig{
			MinInterval:    getDurationOrDefault("THROTTLE_MIN_INTERVAL", 4*time.Second),
			MaxAttempts:    getIntOrDefault("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getDurationOrDefault("RETRY_BASE_DELAY", 2*time.Second),
			RedisURL:       os.Getenv("THROTTLE_REDIS_URL"),
		},
		Processing: ProcessingConfig{
			MaxContentSize: getIntOrDefault("MAX_CONTENT_SIZE", 50000),
			MaskPII:        getBoolOrDefault("MASK_PII", true),
		},
		Store: StoreConfig{
			Driver: getEnvOrDefault("STORE_DRIVER", "sqlite"),
			DSN:    getEnvOrDefault("STORE_DSN", "file:medilens.db"),
		},
		Archive: ArchiveConfig{
			Bucket: os.Getenv("ARCHIVE_S3_BUCKET"),
			Region: os.Getenv("ARCHIVE_S3_REGION"),
		},
		Logging: LoggingConfig{
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 10),
			MaxAgeDays: getIntOrDefault("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = cfg.RequestBudget()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// uploadProviderCalls is the most provider calls one request makes:
// transcription, classification and extraction.
const uploadProviderCalls = 3

// writeSlack covers store writes, archiving and response encoding.
const writeSlack = 10 * time.Second

// CallBudget is the longest one orchestrated provider call can take when
// every attempt times out: each attempt waits out the throttle interval and
// AI.Timeout, and attempt n is followed by n × RetryBaseDelay.
func (c *Config) CallBudget() time.Duration {
	attempts := time.Duration(max(c.Orchestrator.MaxAttempts, 1))
	backoff := attempts * (attempts - 1) / 2 * c.Orchestrator.RetryBaseDelay
	return attempts*(c.Orchestrator.MinInterval+c.AI.Timeout) + backoff
}

// RequestBudget is the default server write timeout: enough for the
// slowest request, an image upload, to finish all its provider calls.
func (c *Config) RequestBudget() time.Duration {
	return uploadProviderCalls*c.CallBudget() + writeSlack
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// AI API key is required unless in mock mode
	if !c.AI.MockMode && c.AI.APIKey == "" {
		return fmt.Errorf("%w: AI_API_KEY is required when not in mock mode", domain.ErrInvalidConfig)
	}

	if c.AI.Timeout < time.Second {
		return fmt.Errorf("%w: AI_TIMEOUT must be at least 1 second", domain.ErrInvalidConfig)
	}

	if c.AI.MaxTokens < 100 {
		return fmt.Errorf("%w: AI_MAX_TOKENS must be at least 100", domain.ErrInvalidConfig)
	}

	if c.Orchestrator.MinInterval < 0 {
		return fmt.Errorf("%w: THROTTLE_MIN_INTERVAL must not be negative", domain.ErrInvalidConfig)
	}

	if c.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("%w: RETRY_MAX_ATTEMPTS must be at least 1", domain.ErrInvalidConfig)
	}

	if c.Orchestrator.RetryBaseDelay < 0 {
		return fmt.Errorf("%w: RETRY_BASE_DELAY must not be negative", domain.ErrInvalidConfig)
	}

	if c.Processing.MaxContentSize < 1000 {
		return fmt.Errorf("%w: MAX_CONTENT_SIZE must be at least 1000 bytes", domain.ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("%w: STORE_DRIVER must be sqlite or pgx, got %q", domain.ErrInvalidConfig, c.Store.Driver)
	}

	if c.Archive.Enabled() && c.Archive.Region == "" {
		return fmt.Errorf("%w: ARCHIVE_S3_REGION is required with ARCHIVE_S3_BUCKET", domain.ErrInvalidConfig)
	}

	return nil
}

// Helper functions for reading environment variables

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first (e.g., "15")
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string (e.g., "15s", "1m")
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
