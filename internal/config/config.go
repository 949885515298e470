package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config holds every runtime setting for the identity server. All values
// come from environment variables with sensible development defaults.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"Tenant Identity Server"`
	Port    string `env:"PORT" envDefault:"8080"`
	Env     string `env:"ENV" envDefault:"DEV"`

	// PostgresDSN is the tenant directory store. Empty means the server
	// falls back to the in-memory repositories (development only).
	PostgresDSN string `env:"POSTGRES_DSN"`

	// RedisAddr backs the session and OTP stores. Empty means in-memory.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// EncryptionKey protects signup passwords at rest during the OTP
	// window. Must be 16, 24 or 32 bytes.
	EncryptionKey string `env:"ENCRYPTION_KEY" envDefault:"dev-only-key-32-bytes-change-me!"`

	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-only-jwt-secret-change-me"`
	TokenIssuer    string        `env:"TOKEN_ISSUER" envDefault:"TENANT_IDENTITY"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`

	SessionTTL              time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	MaxSimultaneousSessions int           `env:"MAX_SIMULTANEOUS_SESSIONS" envDefault:"5"`

	OtpLength int           `env:"OTP_LENGTH" envDefault:"4"`
	OtpTTL    time.Duration `env:"OTP_TTL" envDefault:"300s"`

	SmtpHost     string `env:"SMTP_HOST"`
	SmtpPort     string `env:"SMTP_PORT" envDefault:"587"`
	SmtpAccount  string `env:"SMTP_ACCOUNT"`
	SmtpPassword string `env:"SMTP_PASSWORD"`
	SmtpFrom     string `env:"SMTP_FROM"`
}

// New parses the environment into a Config.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "[config.New] env.Parse")
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if len(c.Port) > 0 && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}

// SmtpConfigured reports whether outbound mail can be sent.
func (c *Config) SmtpConfigured() bool {
	return c.SmtpHost != "" && c.SmtpAccount != ""
}
