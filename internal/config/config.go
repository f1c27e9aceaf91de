package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Broker   BrokerConfig
	Sync     SyncConfig
	Log      LogConfig
	Redis    RedisConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port   string
	Host   string
	Addr   string // Combined host:port for convenience
	APIKey string
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	URL string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// BrokerConfig holds the brokerage credentials and client tuning.
type BrokerConfig struct {
	Email            string
	Password         string
	OTP              string
	BaseURL          string
	Timeout          time.Duration
	RatePerSecond    float64
	SessionCachePath string
	SessionKey       string
}

// SyncConfig controls run behaviour.
type SyncConfig struct {
	HistoryRange     string
	DefaultCurrency  string
	FetchConcurrency int
	Schedule         string
	EnrichAfterSync  bool
	// RunTimeout bounds one scheduled run. Zero disables the deadline.
	RunTimeout time.Duration
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// RedisConfig is optional; an empty URL disables run notifications.
type RedisConfig struct {
	URL string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	timeout, err := time.ParseDuration(getEnv("BROKER_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROKER_TIMEOUT: %w", err)
	}

	rate, err := strconv.ParseFloat(getEnv("BROKER_RATE_PER_SEC", "5"), 64)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid BROKER_RATE_PER_SEC %q", os.Getenv("BROKER_RATE_PER_SEC"))
	}

	concurrency, err := strconv.Atoi(getEnv("FETCH_CONCURRENCY", "1"))
	if err != nil || concurrency < 1 {
		return nil, fmt.Errorf("invalid FETCH_CONCURRENCY %q", os.Getenv("FETCH_CONCURRENCY"))
	}

	enrich, err := strconv.ParseBool(getEnv("ENRICH_AFTER_SYNC", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid ENRICH_AFTER_SYNC: %w", err)
	}

	runTimeout, err := time.ParseDuration(getEnv("SYNC_RUN_TIMEOUT", "2h"))
	if err != nil || runTimeout < 0 {
		return nil, fmt.Errorf("invalid SYNC_RUN_TIMEOUT %q", os.Getenv("SYNC_RUN_TIMEOUT"))
	}

	config := &Config{
		Server: ServerConfig{
			Port:   getEnv("SERVER_PORT", "5001"),
			Host:   getEnv("SERVER_HOST", "localhost"),
			APIKey: os.Getenv("INTERNAL_API_KEY"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost")),
		},
		Broker: BrokerConfig{
			Email:            os.Getenv("BROKER_EMAIL"),
			Password:         os.Getenv("BROKER_PASSWORD"),
			OTP:              os.Getenv("BROKER_OTP"),
			BaseURL:          getEnv("BROKER_BASE_URL", "https://api.brokerage.example/v1"),
			Timeout:          timeout,
			RatePerSecond:    rate,
			SessionCachePath: getEnv("SESSION_CACHE_PATH", "./data/session.tok"),
			SessionKey:       os.Getenv("SESSION_KEY"),
		},
		Sync: SyncConfig{
			HistoryRange:     getEnv("HISTORY_RANGE", "1y"),
			DefaultCurrency:  strings.ToUpper(getEnv("DEFAULT_CURRENCY", "CAD")),
			FetchConcurrency: concurrency,
			Schedule:         getEnv("SYNC_SCHEDULE", "0 6 * * *"),
			EnrichAfterSync:  enrich,
			RunTimeout:       runTimeout,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// Validate checks the settings every subcommand needs.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("%w: DATABASE_URL", apperrors.ErrMissingConfig)
	}
	return nil
}

// ValidateSync checks the settings a sync run needs on top of Validate.
// An empty password is accepted when a session key is set, since a cached
// token may still be valid.
func (c *Config) ValidateSync() error {
	if err := c.Validate(); err != nil {
		return err
	}

	var missing []string
	if c.Broker.Email == "" {
		missing = append(missing, "BROKER_EMAIL")
	}
	if c.Broker.Password == "" && c.Broker.SessionKey == "" {
		missing = append(missing, "BROKER_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
