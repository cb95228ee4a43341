// Package config loads and validates front-desk config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultProfileTimeout = 60 * time.Second
	defaultReuseWindow    = 10 * time.Minute
	defaultSettingsTTL    = 30 * time.Second
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (e.g. "development", "production").
	// In development the daemon may run on the in-memory store when DATABASE_URL is empty.
	Env string `mapstructure:"APP_ENV"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// HealthGRPCAddr is the address the gRPC health server listens on (e.g. :8081).
	HealthGRPCAddr string `mapstructure:"HEALTH_GRPC_ADDR"`

	// AuthJWTSecret is the HS256 secret used by the auth provider to sign access tokens.
	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	// AuthJWTPublicKey is a PEM public key (inline or path) for RS256/ES256 provider tokens.
	AuthJWTPublicKey string `mapstructure:"AUTH_JWT_PUBLIC_KEY"`
	// AuthJWTIssuer is the expected iss claim; not checked when empty.
	AuthJWTIssuer string `mapstructure:"AUTH_JWT_ISSUER"`
	// AuthJWTAudience is the expected aud claim.
	AuthJWTAudience string `mapstructure:"AUTH_JWT_AUDIENCE"`

	// ProfileFetchTimeout bounds the profile fetch of one auth event (e.g. "60s").
	ProfileFetchTimeout string `mapstructure:"PROFILE_FETCH_TIMEOUT"`
	// DeviceRequestReuseWindow is how long a pending device request is reused instead of duplicated.
	DeviceRequestReuseWindow string `mapstructure:"DEVICE_REQUEST_REUSE_WINDOW"`
	// SettingsCacheTTL is the TTL of cached settings rows; "0" disables the cache.
	SettingsCacheTTL string `mapstructure:"SETTINGS_CACHE_TTL"`

	// TerminalFingerprint identifies this terminal. Derived from the host when empty.
	TerminalFingerprint string `mapstructure:"TERMINAL_FINGERPRINT"`
	// TerminalDescription is shown to the administrator reviewing a device request.
	TerminalDescription string `mapstructure:"TERMINAL_DESCRIPTION"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty means no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel resource service name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("HEALTH_GRPC_ADDR", ":8081")
	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("AUTH_JWT_PUBLIC_KEY", "")
	v.SetDefault("AUTH_JWT_ISSUER", "")
	v.SetDefault("AUTH_JWT_AUDIENCE", "authenticated")
	v.SetDefault("PROFILE_FETCH_TIMEOUT", "60s")
	v.SetDefault("DEVICE_REQUEST_REUSE_WINDOW", "10m")
	v.SetDefault("SETTINGS_CACHE_TTL", "30s")
	v.SetDefault("TERMINAL_FINGERPRINT", "")
	v.SetDefault("TERMINAL_DESCRIPTION", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "gym-frontdesk")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "frontdesk-telemetry")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "frontdesk-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HealthGRPCAddr == "" {
		return nil, errors.New("config: HEALTH_GRPC_ADDR must be set")
	}
	if cfg.DatabaseURL == "" && !cfg.IsDevelopment() {
		return nil, errors.New("config: DATABASE_URL must be set unless APP_ENV=development")
	}
	if cfg.AuthJWTSecret != "" && cfg.AuthJWTPublicKey != "" {
		return nil, errors.New("config: set only one of AUTH_JWT_SECRET and AUTH_JWT_PUBLIC_KEY")
	}
	if cfg.AuthJWTAudience == "" {
		return nil, errors.New("config: AUTH_JWT_AUDIENCE must be set")
	}

	return &cfg, nil
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "development")
}

// ProfileTimeout parses ProfileFetchTimeout. Returns 60s if unset or invalid.
func (c *Config) ProfileTimeout() time.Duration {
	return positiveDuration(c.ProfileFetchTimeout, defaultProfileTimeout)
}

// ReuseWindow parses DeviceRequestReuseWindow. Returns 10m if unset or invalid.
func (c *Config) ReuseWindow() time.Duration {
	return positiveDuration(c.DeviceRequestReuseWindow, defaultReuseWindow)
}

// SettingsTTL parses SettingsCacheTTL. "0" (or "0s") disables caching and returns 0;
// unset or invalid values return 30s.
func (c *Config) SettingsTTL() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.SettingsCacheTTL))
	if err != nil || d < 0 {
		return defaultSettingsTTL
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka sink is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func positiveDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
