// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	// Storage error details are only included in responses outside production.
	Env string `mapstructure:"APP_ENV"`
	// APIKey is the shared client key sent as api_key on every request. Required in production.
	APIKey string `mapstructure:"API_KEY"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// TokenTTLRaw is the session token lifetime (e.g. "24h").
	TokenTTLRaw string `mapstructure:"TOKEN_TTL"`
	// TokenLength is the number of characters in an issued session token.
	TokenLength int `mapstructure:"TOKEN_LENGTH"`
	// IDLength is the number of characters in minted internal, class, category and term ids.
	IDLength int `mapstructure:"ID_LENGTH"`
	// IDMaxAttempts bounds the allocate-and-check loop for a single identifier.
	IDMaxAttempts int `mapstructure:"ID_MAX_ATTEMPTS"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionSweepIntervalRaw is how often the worker deletes expired sessions (e.g. "1m").
	SessionSweepIntervalRaw string `mapstructure:"SESSION_SWEEP_INTERVAL"`
	// AuthRateLimit is requests per second allowed per client on credential endpoints. 0 disables.
	AuthRateLimit float64 `mapstructure:"AUTH_RATE_LIMIT"`
	// AuthRateBurst is the burst size for AuthRateLimit.
	AuthRateBurst int `mapstructure:"AUTH_RATE_BURST"`
	// TrustedProxiesRaw is a comma-separated list of proxy IPs or CIDRs whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty trusts none.
	TrustedProxiesRaw string `mapstructure:"TRUSTED_PROXIES"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("API_KEY", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("TOKEN_LENGTH", 64)
	v.SetDefault("ID_LENGTH", 32)
	v.SetDefault("ID_MAX_ATTEMPTS", 10)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1m")
	v.SetDefault("AUTH_RATE_LIMIT", 5)
	v.SetDefault("AUTH_RATE_BURST", 10)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.IsProduction() && cfg.APIKey == "" {
		return nil, errors.New("config: API_KEY must be set when APP_ENV=production")
	}
	if cfg.TokenLength < 16 {
		return nil, errors.New("config: TOKEN_LENGTH must be at least 16")
	}
	if cfg.IDLength < 8 {
		return nil, errors.New("config: ID_LENGTH must be at least 8")
	}
	if cfg.IDMaxAttempts < 1 {
		return nil, errors.New("config: ID_MAX_ATTEMPTS must be positive")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.AuthRateLimit < 0 {
		return nil, errors.New("config: AUTH_RATE_LIMIT must not be negative")
	}
	for _, p := range cfg.TrustedProxies() {
		if !validProxy(p) {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
		}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return nil, errors.New("config: LOG_LEVEL is not a valid level")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// TokenTTL parses TokenTTLRaw as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenTTLRaw)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// SessionSweepInterval parses SessionSweepIntervalRaw. Returns 1m if unset or invalid.
func (c *Config) SessionSweepInterval() time.Duration {
	d, err := time.ParseDuration(c.SessionSweepIntervalRaw)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// TrustedProxies splits TrustedProxiesRaw into trimmed, non-empty entries.
func (c *Config) TrustedProxies() []string {
	var out []string
	for _, p := range strings.Split(c.TrustedProxiesRaw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// Level returns the configured zerolog level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
