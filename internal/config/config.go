// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Storage    StorageConfig   `yaml:"storage"`
	Auth       AuthConfig      `yaml:"auth"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Cache      CacheConfig     `yaml:"cache"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Notify     NotifyConfig    `yaml:"notify"`
	Providers  []ProviderEntry `yaml:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and configures the polymorphic storage backend.
// Backend "sqlite" uses DSN as a file path (or ":memory:"); backend
// "postgres" uses DSN as a libpq connection string and honors PoolSize.
type StorageConfig struct {
	Backend             string        `yaml:"backend"` // "sqlite" | "postgres"
	DSN                 string        `yaml:"dsn"`
	PoolSize            int32         `yaml:"pool_size"`            // postgres only
	KeepaliveJitterBase time.Duration `yaml:"keepalive_jitter_base"` // postgres only, spec.md 240-420s window
}

// AuthConfig holds authentication settings: token TTLs and the admin JWT
// secret. An empty JWTSecret disables JWT issuance/validation entirely
// (admin auth falls back to TuiSession/WebSession), per spec.md section 4.2.
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	JWTTTL           time.Duration `yaml:"jwt_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	PasswordResetTTL time.Duration `yaml:"password_reset_ttl"`
	TuiChallengeTTL  time.Duration `yaml:"tui_challenge_ttl"`
	LoginCodeTTL     time.Duration `yaml:"login_code_ttl"`
	WebSessionTTL    time.Duration `yaml:"web_session_ttl"`
}

// RateLimitConfig holds default rate limiting settings applied when a
// ClientToken doesn't carry its own limits.
type RateLimitConfig struct {
	DefaultRPM int64 `yaml:"default_rpm"` // requests per minute (0 = unlimited)
	DefaultTPM int64 `yaml:"default_tpm"` // tokens per minute (0 = unlimited)
}

// CacheConfig holds the model-list/redirect probe cache settings (spec.md
// section 5).
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// NotifyConfig configures the optional password-reset email dispatch.
// Absent/zero-value Host means notify is disabled and reset tokens are
// issued but never emailed (spec.md section 6 treats this as an external
// collaborator, not a hard dependency of the core).
type NotifyConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// ProviderEntry is a provider definition in the config file. Provider API
// keys are never read from here into persistent storage in plaintext --
// they're seeded through the admin API so KeyLogStrategy governs them from
// the moment they exist.
type ProviderEntry struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"` // "openai" | "anthropic" | "zhipu"
	BaseURL        string   `yaml:"base_url"`
	Models         []string `yaml:"models"`
	Priority       int      `yaml:"priority"`
	Weight         int      `yaml:"weight"`
	Enabled        *bool    `yaml:"enabled"`
	MaxRPS         int      `yaml:"max_rps"`
	TimeoutMs      int      `yaml:"timeout_ms"`
	KeyLogStrategy string   `yaml:"key_log_strategy"` // "none" | "masked" | "plain"
	KeyRotation    string   `yaml:"key_rotation"`     // "sequential" | "random" | "weighted_sequential" | "weighted_random"
}

// IsEnabled reports whether the provider is enabled (defaults to true when nil).
func (p ProviderEntry) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:             "sqlite",
			DSN:                 "gateway.db",
			PoolSize:            10,
			KeepaliveJitterBase: 240 * time.Second,
		},
		Auth: AuthConfig{
			JWTTTL:           8 * time.Hour,
			RefreshTTL:       30 * 24 * time.Hour,
			PasswordResetTTL: time.Hour,
			TuiChallengeTTL:  2 * time.Minute,
			LoginCodeTTL:     10 * time.Minute,
			WebSessionTTL:    7 * 24 * time.Hour,
		},
		RateLimits: RateLimitConfig{
			DefaultRPM: 60,
			DefaultTPM: 100_000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    10_000,
			DefaultTTL: 5 * time.Minute,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
