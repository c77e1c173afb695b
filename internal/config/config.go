// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the REST API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr serves grpc.health.v1 only.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AutoMigrate applies embedded migrations on server start.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "168h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// InviteCodeLength is the length of generated congregation invite codes.
	InviteCodeLength int `mapstructure:"INVITE_CODE_LENGTH"`
	// InviteCodeMaxAttempts bounds regeneration after a unique-constraint collision.
	InviteCodeMaxAttempts int `mapstructure:"INVITE_CODE_MAX_ATTEMPTS"`

	// RedisURL enables per-client rate limiting of public endpoints when set.
	RedisURL           string `mapstructure:"REDIS_URL"`
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	// KafkaBrokers is a comma-separated broker list; membership events are published when set.
	KafkaBrokers          string `mapstructure:"KAFKA_BROKERS"`
	MembershipEventsTopic string `mapstructure:"MEMBERSHIP_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group of the audit backfill worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. localhost:4317). Empty disables export.
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment ("development", "production").
	Env               string `mapstructure:"APP_ENV"`
	CORSAllowedOrigin string `mapstructure:"CORS_ALLOWED_ORIGIN"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// AutomaticEnv only binds keys Viper already knows, so every key gets a default.
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "territory-auth")
	v.SetDefault("JWT_AUDIENCE", "territory-api")
	v.SetDefault("JWT_ACCESS_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("INVITE_CODE_LENGTH", 8)
	v.SetDefault("INVITE_CODE_MAX_ATTEMPTS", 5)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("MEMBERSHIP_EVENTS_TOPIC", "territory-membership")
	v.SetDefault("KAFKA_GROUP_ID", "territory-audit-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "territory-service")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "*")
	v.SetDefault("TRUSTED_PROXIES", "")

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
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.InviteCodeLength < 6 || c.InviteCodeLength > 32 {
		return errors.New("config: INVITE_CODE_LENGTH must be between 6 and 32")
	}
	if c.InviteCodeMaxAttempts < 1 {
		return errors.New("config: INVITE_CODE_MAX_ATTEMPTS must be at least 1")
	}
	if c.RateLimitPerMinute < 1 {
		return errors.New("config: RATE_LIMIT_PER_MINUTE must be at least 1")
	}
	if c.Env == "production" && (c.JWTPrivateKey == "" || c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when APP_ENV=production")
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables membership event publishing.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}
