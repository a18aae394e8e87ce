package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("ActivationTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{ActivationTTLSeconds: 1800}
		assert.Equal(t, 30*time.Minute, cfg.ActivationTTL())
	})

	t.Run("QRSessionTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{QRSessionTTLSeconds: 300}
		assert.Equal(t, 5*time.Minute, cfg.QRSessionTTL())
	})
}

func TestValidate(t *testing.T) {
	t.Run("rejects non-positive activation TTL", func(t *testing.T) {
		cfg := &Config{ActivationTTLSeconds: 0}
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("requires strong session secret in production", func(t *testing.T) {
		cfg := &Config{ActivationTTLSeconds: 1800, SessionSecret: "short"}
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("rejects known weak secrets in production", func(t *testing.T) {
		cfg := &Config{
			ActivationTTLSeconds: 1800,
			SessionSecret:        "change-me",
		}
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("accepts long secret in production", func(t *testing.T) {
		cfg := &Config{
			ActivationTTLSeconds: 1800,
			SessionSecret:        "an-acceptably-long-session-secret-value",
			EncryptionKey:        "0000000000000000000000000000000000000000000000000000000000000000",
			RedisURL:             "rediss://localhost:6379",
		}
		assert.NoError(t, cfg.Validate(true))
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                   os.Getenv("PORT"),
		"DATABASE_URL":           os.Getenv("DATABASE_URL"),
		"REDIS_URL":              os.Getenv("REDIS_URL"),
		"ACTIVATION_TTL_SECONDS": os.Getenv("ACTIVATION_TTL_SECONDS"),
		"QR_SESSION_TTL_SECONDS": os.Getenv("QR_SESSION_TTL_SECONDS"),
		"LOG_LEVEL":              os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("ACTIVATION_TTL_SECONDS")
		os.Unsetenv("QR_SESSION_TTL_SECONDS")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, 1800, cfg.ActivationTTLSeconds)
		assert.Equal(t, 300, cfg.QRSessionTTLSeconds)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("ACTIVATION_TTL_SECONDS", "600")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 600, cfg.ActivationTTLSeconds)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required REDIS_URL", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Unsetenv("REDIS_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
