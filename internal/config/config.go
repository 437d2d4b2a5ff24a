// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis address for the one-time-passcode store (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// JWTKey is the shared HMAC signing key for access tokens. Required.
	JWTKey string `mapstructure:"JWT_KEY"`
	// TokenHashKey keys the HMAC bound to session rows. Defaults to JWTKey when empty.
	TokenHashKey string `mapstructure:"TOKEN_HASH_KEY"`
	// TokenEncryptionKey keys the AES transport envelope. Required.
	TokenEncryptionKey string `mapstructure:"TOKEN_ENCRYPTION_KEY"`
	// JWTIssuer is the iss claim (e.g. "audit-central").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "audit-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// SessionTTLStr is the server-side session lifetime; it also caps any longer
	// duration a caller requests.
	SessionTTLStr string `mapstructure:"SESSION_TTL"`
	// OTPTTLStr is how long a password-reset passcode stays valid.
	OTPTTLStr string `mapstructure:"OTP_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// DefaultTimezone is used when an account has no timezone set.
	DefaultTimezone string `mapstructure:"DEFAULT_TIMEZONE"`

	// SMTP relay for password-reset passcode mail.
	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. A missing signing or
// encryption key is a configuration error here, never a request-time error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_KEY", "")
	v.SetDefault("TOKEN_HASH_KEY", "")
	v.SetDefault("TOKEN_ENCRYPTION_KEY", "")
	v.SetDefault("JWT_ISSUER", "audit-central")
	v.SetDefault("JWT_AUDIENCE", "audit-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("SESSION_TTL", "15m")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("DEFAULT_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTKey == "" {
		return nil, errors.New("config: JWT_KEY must be set")
	}
	if cfg.TokenEncryptionKey == "" {
		return nil, errors.New("config: TOKEN_ENCRYPTION_KEY must be set")
	}
	if cfg.TokenHashKey == "" {
		cfg.TokenHashKey = cfg.JWTKey
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	// A malformed lifetime is a deployment mistake; refuse to start rather
	// than run with a silently substituted default.
	for _, ttl := range []struct{ key, value string }{
		{"JWT_ACCESS_TTL", cfg.JWTAccessTTL},
		{"JWT_REFRESH_TTL", cfg.JWTRefreshTTL},
		{"SESSION_TTL", cfg.SessionTTLStr},
		{"OTP_TTL", cfg.OTPTTLStr},
	} {
		if d, err := time.ParseDuration(ttl.value); err != nil || d <= 0 {
			return nil, fmt.Errorf("config: %s must be a positive duration, got %q", ttl.key, ttl.value)
		}
	}

	return &cfg, nil
}

// AccessTTL parses JWT_ACCESS_TTL as a time.Duration. Load rejects malformed
// values; the 15m fallback covers a zero-value Config in tests.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWT_REFRESH_TTL as a time.Duration, falling back to 168h.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// SessionTTL parses SESSION_TTL as a time.Duration, falling back to 15m.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTLStr)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// OTPTTL parses OTP_TTL as a time.Duration, falling back to 10m.
func (c *Config) OTPTTL() time.Duration {
	d, err := time.ParseDuration(c.OTPTTLStr)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
