// Package config provides configuration loading and validation for the validator CLI and service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonathan/iiif-validator/internal/logging"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (IIIF_VALIDATOR_JSONLD_TIMEOUT=90s).
const EnvPrefix = "IIIF_VALIDATOR"

// ConfigFileEnv names an explicit config file. When unset, ./config.yaml is used if present.
const ConfigFileEnv = "IIIF_VALIDATOR_CONFIG"

// Default values
const (
	DefaultUserAgent     = "IIIF Validation Service"
	DefaultJSONLDTimeout = 60 * time.Second
	DefaultVersion       = "2.1"
	DefaultPort          = 8080
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "pretty"
)

// Config is the full runtime configuration.
type Config struct {
	Fetch     FetchConfig     `mapstructure:"fetch"`
	JSONLD    JSONLDConfig    `mapstructure:"jsonld"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FetchConfig configures outbound manifest fetches.
type FetchConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	// Timeout of zero leaves the HTTP client default in place.
	Timeout time.Duration `mapstructure:"timeout"`
}

// JSONLDConfig configures the JSON-LD document loader used by the 2.x reader.
type JSONLDConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	ResolveContexts bool          `mapstructure:"resolve_contexts"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	DefaultVersion string `mapstructure:"default_version"`
}

// RateLimitConfig configures per-client request limiting in the HTTP service.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	Whitelist         []string      `mapstructure:"whitelist"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional YAML file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.timeout", time.Duration(0))

	v.SetDefault("jsonld.timeout", DefaultJSONLDTimeout)
	v.SetDefault("jsonld.resolve_contexts", false)

	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.default_version", DefaultVersion)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_minute", 120)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.cleanup_interval", 5*time.Minute)
	v.SetDefault("ratelimit.whitelist", []string{})

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("config error: 'fetch.user_agent' must not be empty")
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("config error: 'fetch.timeout' must be non-negative")
	}
	if c.JSONLD.Timeout <= 0 {
		return fmt.Errorf("config error: 'jsonld.timeout' must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("config error: 'ratelimit.requests_per_minute' must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("config error: 'ratelimit.burst' must be non-negative")
		}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("config error: unknown log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "pretty" && c.Logging.Format != "json" {
		return fmt.Errorf("config error: 'logging.format' must be pretty or json")
	}
	return nil
}
