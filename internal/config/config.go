package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                 int    `env:"PORT" envDefault:"8080"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RedisURL             string `env:"REDIS_URL,required"`
	SessionSecret        string `env:"SESSION_SECRET"`
	EncryptionKey        string `env:"ENCRYPTION_KEY"`
	ActivationTTLSeconds int    `env:"ACTIVATION_TTL_SECONDS" envDefault:"1800"`
	QRSessionTTLSeconds  int    `env:"QR_SESSION_TTL_SECONDS" envDefault:"300"`
	XtreamCacheSeconds   int    `env:"XTREAM_CACHE_SECONDS" envDefault:"300"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	StaticDir            string `env:"STATIC_DIR" envDefault:"static/tv"`
}

// ActivationTTL is the lifetime of a pairing code. The flow variants in the
// wild use anything from 30 minutes to 24 hours; 30 minutes is the canonical
// choice here and the default.
func (c *Config) ActivationTTL() time.Duration {
	return time.Duration(c.ActivationTTLSeconds) * time.Second
}

func (c *Config) QRSessionTTL() time.Duration {
	return time.Duration(c.QRSessionTTLSeconds) * time.Second
}

func (c *Config) XtreamCacheTTL() time.Duration {
	return time.Duration(c.XtreamCacheSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.ActivationTTLSeconds <= 0 {
		return fmt.Errorf("ACTIVATION_TTL_SECONDS must be positive")
	}

	if isProduction {
		if err := validateSecret("SESSION_SECRET", c.SessionSecret); err != nil {
			return err
		}

		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: streaming credentials will not be encrypted at rest")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
