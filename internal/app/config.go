package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"120s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"120s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// Empty disables the invoice archive; everything else runs on
	// Redis alone.
	PGDSN string `envconfig:"PG_DSN" default:""`

	RedisAddr    string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	CryptoSecret string        `envconfig:"CRYPTO_SECRET" required:"true"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"12h"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.CryptoSecret == "" {
		return nil, errors.New("crypto secret must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
