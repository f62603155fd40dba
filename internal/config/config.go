package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

type Config struct {
	ListenAddr  string `env:"ROOMKEY_LISTEN_ADDR"   envDefault:":8080"`
	JoinBaseURL string `env:"ROOMKEY_JOIN_BASE_URL" envDefault:"http://localhost:3000/video"`

	Video     VideoConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Slack     SlackConfig
	Lease     LeaseConfig
	CLI       CLIConfig
	Log       LogConfig
}

// VideoConfig carries the signing material for video access tokens.
type VideoConfig struct {
	AccountSID   string        `env:"ROOMKEY_ACCOUNT_SID"`
	APIKeySID    string        `env:"ROOMKEY_API_KEY_SID"`
	APIKeySecret string        `env:"ROOMKEY_API_KEY_SECRET"`
	TokenTTL     time.Duration `env:"ROOMKEY_TOKEN_TTL"      envDefault:"1h"`
}

type AuthConfig struct {
	DevToken       string `env:"ROOMKEY_DEV_TOKEN"`
	OIDCIssuer     string `env:"ROOMKEY_OIDC_ISSUER"`
	OIDCAudience   string `env:"ROOMKEY_OIDC_AUDIENCE"`
	OIDCJWKSURL    string `env:"ROOMKEY_OIDC_JWKS_URL"`
	AllowAnonymous bool   `env:"ROOMKEY_ALLOW_ANONYMOUS" envDefault:"false"`
}

type RateLimitConfig struct {
	RPS   float64 `env:"ROOMKEY_RATE_LIMIT_RPS"   envDefault:"0"`
	Burst int     `env:"ROOMKEY_RATE_LIMIT_BURST" envDefault:"10"`
}

type SlackConfig struct {
	BotToken      string `env:"ROOMKEY_SLACK_BOT_TOKEN"`
	SigningSecret string `env:"ROOMKEY_SLACK_SIGNING_SECRET"`
	APIURL        string `env:"ROOMKEY_SLACK_API_URL"`
}

type LeaseConfig struct {
	RedisAddr string        `env:"ROOMKEY_REDIS_ADDR"`
	TTL       time.Duration `env:"ROOMKEY_LEASE_TTL"  envDefault:"0s"`
}

type CLIConfig struct {
	GatewayURL  string `env:"ROOMKEY_GATEWAY_URL"  envDefault:"http://localhost:8080"`
	CallerToken string `env:"ROOMKEY_CALLER_TOKEN"`
}

type LogConfig struct {
	Level  string `env:"ROOMKEY_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"ROOMKEY_LOG_FORMAT" envDefault:"json"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports deployment errors for the gateway: the signing material must be present.
func (c VideoConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AccountSID) == "" {
		missing = append(missing, "ROOMKEY_ACCOUNT_SID")
	}
	if strings.TrimSpace(c.APIKeySID) == "" {
		missing = append(missing, "ROOMKEY_API_KEY_SID")
	}
	if strings.TrimSpace(c.APIKeySecret) == "" {
		missing = append(missing, "ROOMKEY_API_KEY_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.TokenTTL <= 0 || c.TokenTTL > 24*time.Hour {
		return fmt.Errorf("ROOMKEY_TOKEN_TTL must be between 1s and 24h, got %s", c.TokenTTL)
	}
	return nil
}

// OIDCEnabled reports whether identity-provider tokens are accepted. The JWKS
// URL defaults to the issuer's well-known location.
func (c AuthConfig) OIDCEnabled() bool {
	return strings.TrimSpace(c.OIDCIssuer) != ""
}

func (c SlackConfig) Enabled() bool {
	return c.BotToken != "" && c.SigningSecret != ""
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c LogConfig) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if c.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
