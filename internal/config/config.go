// Package config provides configuration management for streamsource using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "STREAMSOURCE"

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerTimeout         = 30 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultRequestTimeout        = 30 * time.Second
	defaultRetryDelay            = time.Second
	defaultMaxManifestSize       = 32 * MiB
	defaultUserAgent             = "streamsource/1.0"
	defaultXlinkTimeout          = 10 * time.Second
	defaultXlinkConcurrency      = 4
	defaultSteeringTimeout       = 5 * time.Second
	defaultBlacklistTTL          = 60 * time.Second
	defaultRedisPrefix           = "streamsource:blacklist:"
	defaultRefreshMinInterval    = 2 * time.Second
	defaultRefreshFallback       = 10 * time.Second
	defaultCircuitBreakerThresh  = 5
	defaultCircuitBreakerTimeout = 30 * time.Second
	defaultCircuitHalfOpenMax    = 1
)

// Blacklist backends.
const (
	BlacklistBackendMemory = "memory"
	BlacklistBackendRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Logging        LoggingConfig        `mapstructure:"logging" yaml:"logging"`
	Manifest       ManifestConfig       `mapstructure:"manifest" yaml:"manifest"`
	Xlink          XlinkConfig          `mapstructure:"xlink" yaml:"xlink"`
	Selection      SelectionConfig      `mapstructure:"selection" yaml:"selection"`
	Steering       SteeringConfig       `mapstructure:"steering" yaml:"steering"`
	Blacklist      BlacklistConfig      `mapstructure:"blacklist" yaml:"blacklist"`
	Refresh        RefreshConfig        `mapstructure:"refresh" yaml:"refresh"`
	Server         ServerConfig         `mapstructure:"server" yaml:"server"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // trace, debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
	// RedactFields lists attribute and query parameter names whose values
	// are masked. Empty uses the built-in list.
	RedactFields []string `mapstructure:"redact_fields" yaml:"redact_fields"`
}

// ManifestConfig holds manifest acquisition configuration.
type ManifestConfig struct {
	RequestTimeout            time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RetryAttempts             int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay                time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	EnableDurationMismatchFix bool          `mapstructure:"enable_duration_mismatch_fix" yaml:"enable_duration_mismatch_fix"`
	// DocumentLocation is the base for relative manifest URLs (empty = working directory).
	DocumentLocation string `mapstructure:"document_location" yaml:"document_location"`
	// MaxSize bounds a fetched document.
	// Supports human-readable values like "32MiB", "10MB", or raw byte counts.
	MaxSize   ByteSize `mapstructure:"max_size" yaml:"max_size"`
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
}

// XlinkConfig holds remote-inclusion configuration.
type XlinkConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// SelectionConfig holds base URL selection configuration.
type SelectionConfig struct {
	// DVBTierRemoval drops every candidate sharing a priority with a
	// blacklisted one when the DVB strategy is active.
	DVBTierRemoval bool `mapstructure:"dvb_tier_removal" yaml:"dvb_tier_removal"`
}

// SteeringConfig holds content steering configuration.
type SteeringConfig struct {
	Apply   bool          `mapstructure:"apply" yaml:"apply"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BlacklistConfig holds failed-origin exclusion configuration.
type BlacklistConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend"` // memory, redis
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds the Redis blacklist backend connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// RefreshConfig holds dynamic manifest refresh configuration.
type RefreshConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	MinInterval      time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
	FallbackInterval time.Duration `mapstructure:"fallback_interval" yaml:"fallback_interval"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// CircuitBreakerConfig holds the per-origin circuit breaker configuration.
type CircuitBreakerConfig struct {
	Threshold   int           `mapstructure:"threshold" yaml:"threshold"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	HalfOpenMax int           `mapstructure:"half_open_max" yaml:"half_open_max"`
}

// New returns a Viper instance with defaults, config search paths and
// environment overrides configured.
func New(configPath string) *viper.Viper {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streamsource")
		v.AddConfigPath("$HOME/.streamsource")
	}

	// Environment variable settings
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with STREAMSOURCE_ and use underscores for nesting.
// Example: STREAMSOURCE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := New(configPath)

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.redact_fields", []string{})

	// Manifest defaults
	v.SetDefault("manifest.request_timeout", defaultRequestTimeout)
	v.SetDefault("manifest.retry_attempts", 0)
	v.SetDefault("manifest.retry_delay", defaultRetryDelay)
	v.SetDefault("manifest.enable_duration_mismatch_fix", true)
	v.SetDefault("manifest.document_location", "")
	v.SetDefault("manifest.max_size", int64(defaultMaxManifestSize))
	v.SetDefault("manifest.user_agent", defaultUserAgent)

	// Xlink defaults
	v.SetDefault("xlink.timeout", defaultXlinkTimeout)
	v.SetDefault("xlink.concurrency", defaultXlinkConcurrency)

	// Selection defaults
	v.SetDefault("selection.dvb_tier_removal", false)

	// Steering defaults
	v.SetDefault("steering.apply", true)
	v.SetDefault("steering.timeout", defaultSteeringTimeout)

	// Blacklist defaults
	v.SetDefault("blacklist.backend", BlacklistBackendMemory)
	v.SetDefault("blacklist.ttl", defaultBlacklistTTL)
	v.SetDefault("blacklist.redis.addr", "localhost:6379")
	v.SetDefault("blacklist.redis.username", "")
	v.SetDefault("blacklist.redis.password", "")
	v.SetDefault("blacklist.redis.db", 0)
	v.SetDefault("blacklist.redis.prefix", defaultRedisPrefix)

	// Refresh defaults
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.min_interval", defaultRefreshMinInterval)
	v.SetDefault("refresh.fallback_interval", defaultRefreshFallback)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.threshold", defaultCircuitBreakerThresh)
	v.SetDefault("circuit_breaker.timeout", defaultCircuitBreakerTimeout)
	v.SetDefault("circuit_breaker.half_open_max", defaultCircuitHalfOpenMax)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Manifest validation
	if c.Manifest.RequestTimeout <= 0 {
		return fmt.Errorf("manifest.request_timeout must be positive")
	}
	if c.Manifest.RetryAttempts < 0 || c.Manifest.RetryAttempts > 10 {
		return fmt.Errorf("manifest.retry_attempts must be between 0 and 10")
	}
	if c.Manifest.MaxSize < 0 {
		return fmt.Errorf("manifest.max_size must not be negative")
	}

	// Xlink validation
	if c.Xlink.Concurrency < 1 || c.Xlink.Concurrency > 64 {
		return fmt.Errorf("xlink.concurrency must be between 1 and 64")
	}

	// Blacklist validation
	switch c.Blacklist.Backend {
	case BlacklistBackendMemory:
	case BlacklistBackendRedis:
		if c.Blacklist.Redis.Addr == "" {
			return fmt.Errorf("blacklist.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("blacklist.backend must be one of: memory, redis")
	}
	if c.Blacklist.TTL < 0 {
		return fmt.Errorf("blacklist.ttl must not be negative")
	}

	// Refresh validation
	if c.Refresh.Enabled && c.Refresh.MinInterval < time.Second {
		return fmt.Errorf("refresh.min_interval must be at least 1s")
	}

	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Circuit breaker validation
	if c.CircuitBreaker.Threshold < 1 {
		return fmt.Errorf("circuit_breaker.threshold must be at least 1")
	}
	if c.CircuitBreaker.HalfOpenMax < 1 {
		return fmt.Errorf("circuit_breaker.half_open_max must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultsYAML renders the default configuration as YAML.
func DefaultsYAML() ([]byte, error) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	return cfg.YAML()
}

// YAML renders c as YAML.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}
