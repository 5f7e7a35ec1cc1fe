package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SESSION_CACHE_TTL_SECONDS")
	unsetEnvWithCleanup(t, "RETRY_MAX_ATTEMPTS")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "SERVER_PORT")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8086", cfg.ServerPort)
	assert.Equal(t, 600*time.Second, cfg.SessionCacheTTL())
	assert.Equal(t, 12*time.Hour, cfg.ProviderCatalogTTL())
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.RetryMaxBackoff())
	assert.Equal(t, []string{"corp", "bcp", "smes"}, cfg.ProviderCodeFilterList())
	assert.Equal(t, "jwt", cfg.AuthMode)
}

func TestLoadConfig_CoercesNonPositiveValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SESSION_CACHE_TTL_SECONDS", "0")
	setEnvWithCleanup(t, "RETRY_MAX_ATTEMPTS", "-3")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, defaultSessionCacheTTLSeconds, cfg.SessionCacheTTLSeconds)
	assert.Equal(t, defaultRetryMaxAttempts, cfg.RetryMaxAttempts)
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "9100")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.ServerPort)
}

func TestLoadConfig_RedisAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "REDIS_URL")
	setEnvWithCleanup(t, "BANKING_REDIS_URL", " redis://cache:6379/0 ")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{AuthMode: "jwt"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROMETEO_API_KEY")
	assert.Contains(t, err.Error(), "BANKING_CREDENTIALS_ENCRYPTION_KEY")
	assert.Contains(t, err.Error(), "PROMETEO_SESSION_ENCRYPTION_KEY")
	assert.Contains(t, err.Error(), "CLERK_JWKS_URL")

	cfg = Config{
		AuthMode:                 "header",
		PrometeoAPIKey:           "key",
		CredentialsEncryptionKey: "creds-secret",
		SessionEncryptionKey:     "session-secret",
	}
	assert.NoError(t, cfg.Validate())
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
