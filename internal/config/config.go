// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects in-memory repositories (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL for pending login challenges (e.g. redis://localhost:6379/0).
	// Empty keeps challenges in process memory.
	RedisURL string `mapstructure:"REDIS_URL"`
	// AppBaseURL is the front-end origin used to build invite and reset links.
	AppBaseURL string `mapstructure:"APP_BASE_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTLRaw is the session token lifetime (e.g. "8h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// InviteTTLRaw and ResetTTLRaw bound INVITE/RESET token validity.
	InviteTTLRaw string `mapstructure:"INVITE_TTL"`
	ResetTTLRaw  string `mapstructure:"RESET_TTL"`
	// TokenRetentionRaw is how long expired or used tokens are kept before the worker purges them.
	TokenRetentionRaw string `mapstructure:"TOKEN_RETENTION"`
	// PurgeIntervalRaw is how often the worker purges tokens.
	PurgeIntervalRaw string `mapstructure:"PURGE_INTERVAL"`

	// MFAChallengeTTLRaw is how long a password-verified login waits for its TOTP code.
	MFAChallengeTTLRaw string `mapstructure:"MFA_CHALLENGE_TTL"`
	// MFAMaxAttempts is the number of wrong codes after which a challenge is dropped.
	MFAMaxAttempts int `mapstructure:"MFA_MAX_ATTEMPTS"`
	// TOTPIssuer is shown by authenticator apps.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	// TOTPSkew accepts codes from the previous 30s step.
	TOTPSkew bool `mapstructure:"TOTP_SKEW"`

	// MailAPIURL, MailAPIKey and MailFrom configure the HTTP mail API used for invite/reset emails.
	MailAPIURL string `mapstructure:"MAIL_API_URL"`
	MailAPIKey string `mapstructure:"MAIL_API_KEY"`
	MailFrom   string `mapstructure:"MAIL_FROM"`
	// DevOutbox when true keeps emails in memory instead of sending them. Must not be true when Env is production.
	DevOutbox bool `mapstructure:"DEV_OUTBOX"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// PolicyFile is an optional Rego module (package backoffice.credentials) overriding the default policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// Telemetry (optional). When the OTLP endpoint is set, traces, metrics and credential events are exported.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "backoffice-auth")
	v.SetDefault("JWT_AUDIENCE", "backoffice-api")
	v.SetDefault("SESSION_TTL", "8h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("INVITE_TTL", "24h")
	v.SetDefault("RESET_TTL", "2h")
	v.SetDefault("TOKEN_RETENTION", "168h")
	v.SetDefault("PURGE_INTERVAL", "1h")
	v.SetDefault("MFA_CHALLENGE_TTL", "5m")
	v.SetDefault("MFA_MAX_ATTEMPTS", 5)
	v.SetDefault("TOTP_ISSUER", "Backoffice")
	v.SetDefault("TOTP_SKEW", true)
	v.SetDefault("MAIL_API_URL", "")
	v.SetDefault("MAIL_API_KEY", "")
	v.SetDefault("MAIL_FROM", "")
	v.SetDefault("DEV_OUTBOX", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "backoffice-auth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.DevOutbox && c.IsProduction() {
		return errors.New("config: DEV_OUTBOX must not be true when APP_ENV=production")
	}
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when APP_ENV=production")
		}
		if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
			return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when APP_ENV=production")
		}
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.MFAMaxAttempts <= 0 {
		return errors.New("config: MFA_MAX_ATTEMPTS must be positive")
	}
	u, err := url.Parse(c.AppBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("config: APP_BASE_URL must be an absolute http(s) URL")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MailConfigured reports whether the HTTP mail API can be used.
func (c *Config) MailConfigured() bool {
	return c.MailAPIURL != "" && c.MailAPIKey != "" && c.MailFrom != ""
}

// SessionTTL parses SESSION_TTL. Returns 8h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, 8*time.Hour)
}

// InviteTTL parses INVITE_TTL. Returns 24h if unset or invalid.
func (c *Config) InviteTTL() time.Duration {
	return parseDuration(c.InviteTTLRaw, 24*time.Hour)
}

// ResetTTL parses RESET_TTL. Returns 2h if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	return parseDuration(c.ResetTTLRaw, 2*time.Hour)
}

// MFAChallengeTTL parses MFA_CHALLENGE_TTL. Returns 5m if unset or invalid.
func (c *Config) MFAChallengeTTL() time.Duration {
	return parseDuration(c.MFAChallengeTTLRaw, 5*time.Minute)
}

// TokenRetention parses TOKEN_RETENTION. Returns 168h if unset or invalid.
func (c *Config) TokenRetention() time.Duration {
	return parseDuration(c.TokenRetentionRaw, 168*time.Hour)
}

// PurgeInterval parses PURGE_INTERVAL. Returns 1h if unset or invalid.
func (c *Config) PurgeInterval() time.Duration {
	return parseDuration(c.PurgeIntervalRaw, time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
