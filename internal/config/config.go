/**
 * @description
 * This package handles the configuration management for the banking-service. It uses
 * Viper to read settings from environment variables or an optional .env file and
 * exposes them as a single explicit Config value that is passed to every component.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration management.
 * - github.com/rs/zerolog: Warnings about coerced or unreadable settings.
 */

package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	defaultSessionCacheTTLSeconds = 600
	defaultCatalogTTLHours        = 12
	defaultRetryMaxAttempts       = 5
	defaultRetryMaxBackoffMS      = 3000
	defaultRateLimitPerMinute     = 60
	defaultRateLimitPrefix        = "banking:rate_limit"
)

// Config holds all the configuration variables for the banking-service.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	UserEventsQueue      string `mapstructure:"USER_EVENTS_QUEUE"`
	PrometeoAPIURL       string `mapstructure:"PROMETEO_API_URL"`
	PrometeoAPIKey       string `mapstructure:"PROMETEO_API_KEY"`
	// Secret used to encrypt stored banking credentials.
	CredentialsEncryptionKey string `mapstructure:"BANKING_CREDENTIALS_ENCRYPTION_KEY"`
	// Secret used to encrypt cached upstream session keys.
	SessionEncryptionKey string `mapstructure:"PROMETEO_SESSION_ENCRYPTION_KEY"`
	UserServiceURL       string `mapstructure:"USER_SERVICE_URL"`
	ClerkJWKSURL         string `mapstructure:"CLERK_JWKS_URL"`
	AuthMode             string `mapstructure:"AUTH_MODE"`
	CORSAllowedOrigins   string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel             string `mapstructure:"LOG_LEVEL"`
	LogPretty            bool   `mapstructure:"LOG_PRETTY"`

	SessionCacheTTLSeconds  int    `mapstructure:"SESSION_CACHE_TTL_SECONDS"`
	ProviderCatalogTTLHours int    `mapstructure:"PROVIDER_CATALOG_TTL_HOURS"`
	ProviderCatalogCountry  string `mapstructure:"PROVIDER_CATALOG_COUNTRY"`
	ProviderCodeFilters     string `mapstructure:"PROVIDER_CODE_FILTERS"`
	ProviderRefreshSchedule string `mapstructure:"PROVIDER_CATALOG_REFRESH_SCHEDULE"`
	RetryMaxAttempts        int    `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryMaxBackoffMS       int    `mapstructure:"RETRY_MAX_BACKOFF_MS"`
	RateLimitPerMinute      int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables and an optional .env
// file located in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("PROMETEO_API_URL", "https://banking.sandbox.prometeoapi.com")
	viper.SetDefault("USER_SERVICE_URL", "http://localhost:8081")
	viper.SetDefault("USER_EVENTS_QUEUE", "banking_service.user_events")
	viper.SetDefault("AUTH_MODE", "jwt")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_PRETTY", false)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("SESSION_CACHE_TTL_SECONDS", defaultSessionCacheTTLSeconds)
	viper.SetDefault("PROVIDER_CATALOG_TTL_HOURS", defaultCatalogTTLHours)
	viper.SetDefault("PROVIDER_CATALOG_COUNTRY", "PE")
	viper.SetDefault("PROVIDER_CODE_FILTERS", "corp,bcp,smes")
	viper.SetDefault("PROVIDER_CATALOG_REFRESH_SCHEDULE", "@every 6h")
	viper.SetDefault("RETRY_MAX_ATTEMPTS", defaultRetryMaxAttempts)
	viper.SetDefault("RETRY_MAX_BACKOFF_MS", defaultRetryMaxBackoffMS)
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", defaultRateLimitPerMinute)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BANKING_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("USER_EVENTS_QUEUE")
	_ = viper.BindEnv("PROMETEO_API_URL")
	_ = viper.BindEnv("PROMETEO_API_KEY")
	_ = viper.BindEnv("BANKING_CREDENTIALS_ENCRYPTION_KEY")
	_ = viper.BindEnv("PROMETEO_SESSION_ENCRYPTION_KEY")
	_ = viper.BindEnv("USER_SERVICE_URL")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("AUTH_MODE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("LOG_PRETTY")
	_ = viper.BindEnv("SESSION_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("PROVIDER_CATALOG_TTL_HOURS")
	_ = viper.BindEnv("PROVIDER_CATALOG_COUNTRY")
	_ = viper.BindEnv("PROVIDER_CODE_FILTERS")
	_ = viper.BindEnv("PROVIDER_CATALOG_REFRESH_SCHEDULE")
	_ = viper.BindEnv("RETRY_MAX_ATTEMPTS")
	_ = viper.BindEnv("RETRY_MAX_BACKOFF_MS")
	_ = viper.BindEnv("RATE_LIMIT_PER_MINUTE")

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn().Str("component", "config").Err(err).Msg("failed to read config file; using environment values")
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.PrometeoAPIURL = strings.TrimRight(strings.TrimSpace(config.PrometeoAPIURL), "/")
	config.AuthMode = strings.ToLower(strings.TrimSpace(config.AuthMode))
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}

	config.SessionCacheTTLSeconds = positiveOrDefault("SESSION_CACHE_TTL_SECONDS", config.SessionCacheTTLSeconds, defaultSessionCacheTTLSeconds)
	config.ProviderCatalogTTLHours = positiveOrDefault("PROVIDER_CATALOG_TTL_HOURS", config.ProviderCatalogTTLHours, defaultCatalogTTLHours)
	config.RetryMaxAttempts = positiveOrDefault("RETRY_MAX_ATTEMPTS", config.RetryMaxAttempts, defaultRetryMaxAttempts)
	config.RetryMaxBackoffMS = positiveOrDefault("RETRY_MAX_BACKOFF_MS", config.RetryMaxBackoffMS, defaultRetryMaxBackoffMS)
	config.RateLimitPerMinute = positiveOrDefault("RATE_LIMIT_PER_MINUTE", config.RateLimitPerMinute, defaultRateLimitPerMinute)

	return
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.PrometeoAPIKey) == "" {
		missing = append(missing, "PROMETEO_API_KEY")
	}
	if strings.TrimSpace(c.CredentialsEncryptionKey) == "" {
		missing = append(missing, "BANKING_CREDENTIALS_ENCRYPTION_KEY")
	}
	if strings.TrimSpace(c.SessionEncryptionKey) == "" {
		missing = append(missing, "PROMETEO_SESSION_ENCRYPTION_KEY")
	}
	if c.AuthMode == "jwt" && strings.TrimSpace(c.ClerkJWKSURL) == "" {
		missing = append(missing, "CLERK_JWKS_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

// SessionCacheTTL is the lifetime of a cached upstream session key.
func (c Config) SessionCacheTTL() time.Duration {
	return time.Duration(c.SessionCacheTTLSeconds) * time.Second
}

// ProviderCatalogTTL is the lifetime of the cached provider catalog.
func (c Config) ProviderCatalogTTL() time.Duration {
	return time.Duration(c.ProviderCatalogTTLHours) * time.Hour
}

// RetryMaxBackoff caps the delay between upstream retries.
func (c Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMS) * time.Millisecond
}

// ProviderCodeFilterList splits PROVIDER_CODE_FILTERS into lowercase markers.
func (c Config) ProviderCodeFilterList() []string {
	return splitList(c.ProviderCodeFilters)
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS.
func (c Config) AllowedOrigins() []string {
	origins := splitList(c.CORSAllowedOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func positiveOrDefault(key string, value, fallback int) int {
	if value > 0 {
		return value
	}
	log.Warn().Str("component", "config").Str("key", key).Int("value", value).Int("default", fallback).
		Msg("non-positive value configured; using default")
	return fallback
}
