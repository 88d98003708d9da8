package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nikola43/socks5gate/pkg/validator"
)

// Config holds all application configuration
type Config struct {
	// Listen configuration for the SOCKS5 listener
	Listen ListenConfig

	// Auth configuration for method negotiation and credentials
	Auth AuthConfig

	// Timeouts bound each phase of a connection's life cycle
	Timeouts TimeoutsConfig

	// Logging configuration
	Logging LoggingConfig

	// Metrics configuration for the admin HTTP surface
	Metrics MetricsConfig

	// Redis configuration, used only to back the admin endpoint's
	// rate limiter when Redis.Enabled is true
	Redis RedisConfig

	// Admin configuration for the metrics/health HTTP surface
	Admin AdminConfig
}

// ListenConfig holds the SOCKS5 listener's bind address
type ListenConfig struct {
	Host string
	Port int
}

// AuthConfig holds authentication method and credential source
type AuthConfig struct {
	// Method is either "none" or "password"
	Method string
	// CredentialsFile is the path to a YAML credentials file, required
	// when Method == "password"
	CredentialsFile string
	// CredentialsEncryptionKeyEnv names the environment variable that
	// holds the base64-encoded AES-256 key used to decrypt
	// CredentialsFile, if it is encrypted at rest. Empty means the
	// file is plain YAML.
	CredentialsEncryptionKeyEnv string
}

// TimeoutsConfig holds the per-phase deadlines applied to each
// connection
type TimeoutsConfig struct {
	Greeting time.Duration
	Auth     time.Duration
	Request  time.Duration
	Dial     time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string
	Format      string
	AddSource   bool
	Service     string
	Version     string
	Environment string
}

// MetricsConfig holds the admin HTTP server's metrics configuration
type MetricsConfig struct {
	Enabled bool
	Host    string
	Port    string
	Path    string
}

// RedisConfig holds Redis configuration for the admin rate limiter
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// AdminConfig holds configuration for the metrics/health HTTP surface,
// distinct from the SOCKS5 listener itself
type AdminConfig struct {
	RateLimit RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int
	WindowSize  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Listen: ListenConfig{
			Host: getEnv("LISTEN_HOST", "0.0.0.0"),
			Port: getEnvAsInt("LISTEN_PORT", 1080),
		},

		Auth: AuthConfig{
			Method:                      getEnv("AUTH_METHOD", "none"),
			CredentialsFile:             getEnv("CREDENTIALS_FILE", ""),
			CredentialsEncryptionKeyEnv: getEnv("CREDENTIALS_ENCRYPTION_KEY_ENV", ""),
		},

		Timeouts: TimeoutsConfig{
			Greeting: getEnvAsDuration("TIMEOUT_GREETING", 10*time.Second),
			Auth:     getEnvAsDuration("TIMEOUT_AUTH", 10*time.Second),
			Request:  getEnvAsDuration("TIMEOUT_REQUEST", 10*time.Second),
			Dial:     getEnvAsDuration("TIMEOUT_DIAL", 10*time.Second),
		},

		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			AddSource:   getEnvAsBool("LOG_ADD_SOURCE", true),
			Service:     getEnv("SERVICE_NAME", "socks5gate"),
			Version:     getEnv("VERSION", "1.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},

		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Host:    getEnv("METRICS_HOST", "127.0.0.1"),
			Port:    getEnv("METRICS_PORT", "9090"),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Admin: AdminConfig{
			RateLimit: RateLimitConfig{
				Enabled:     getEnvAsBool("ADMIN_RATE_LIMIT_ENABLED", true),
				MaxRequests: getEnvAsInt("ADMIN_RATE_LIMIT_MAX_REQUESTS", 60),
				WindowSize:  getEnvAsDuration("ADMIN_RATE_LIMIT_WINDOW", time.Minute),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.ValidateListenAddr(c.Listen.Host, c.Listen.Port); err != nil {
		return err
	}
	if err := validator.ValidateAuthMethod(c.Auth.Method); err != nil {
		return err
	}

	if c.Auth.Method == "password" && c.Auth.CredentialsFile == "" {
		return fmt.Errorf("CREDENTIALS_FILE is required when AUTH_METHOD is \"password\"")
	}

	if c.Logging.Environment == "production" && c.Auth.Method == "none" {
		return fmt.Errorf("AUTH_METHOD must not be \"none\" in production")
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is true")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Logging.Environment == "production"
}

// Addr returns the SOCKS5 listener's bind address in host:port form
func (c *ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the admin HTTP server's bind address in host:port form
func (c *MetricsConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
