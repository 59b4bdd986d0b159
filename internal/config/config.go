package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"8080"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// Timeouts
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Uploads
	UploadMaxBytes     int64  `envconfig:"UPLOAD_MAX_BYTES" default:"26214400"`
	UploadSniffContent bool   `envconfig:"UPLOAD_SNIFF_CONTENT" default:"true"`
	TempDir            string `envconfig:"TEMP_DIR"`

	// External engine resilience
	ExternalCallTimeout     time.Duration `envconfig:"EXTERNAL_CALL_TIMEOUT" default:"60s"`
	ExternalMaxAttempts     int           `envconfig:"EXTERNAL_MAX_ATTEMPTS" default:"3"`
	ExternalBackoffBase     time.Duration `envconfig:"EXTERNAL_BACKOFF_BASE" default:"200ms"`
	CircuitFailureThreshold uint32        `envconfig:"CIRCUIT_FAILURE_THRESHOLD" default:"5"`
	CircuitCooldown         time.Duration `envconfig:"CIRCUIT_COOLDOWN" default:"30s"`
	CircuitWindow           time.Duration `envconfig:"CIRCUIT_WINDOW" default:"60s"`

	// AI engines
	AIProvider  string `envconfig:"AI_PROVIDER" default:"openai"`
	OpenAIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel string `envconfig:"OPENAI_MODEL"`

	GeminiProjectID string `envconfig:"GEMINI_PROJECT_ID"`
	GCPLocation     string `envconfig:"GCP_LOCATION" default:"asia-southeast1"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	return &cfg, nil
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
