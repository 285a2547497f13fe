// ABOUTME: Configuration loading and parsing for sessiond
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minSecretLength mirrors the codec's requirement so misconfiguration fails
// at startup, not at first login.
const minSecretLength = 32

// Config represents the complete sessiond configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Redis   RedisConfig   `yaml:"redis"`
	CORS    CORSConfig    `yaml:"cors"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds credential and session-lifetime configuration
type AuthConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	ExemptPaths []string `yaml:"exempt_paths"`

	AccessTokenLifetime  time.Duration `yaml:"-"`
	RefreshTokenLifetime time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	AccessTokenLifetimeRaw  string `yaml:"access_token_lifetime"`
	RefreshTokenLifetimeRaw string `yaml:"refresh_token_lifetime"`
}

// RedisConfig holds session-store connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CORSConfig holds cross-origin configuration for browser clients
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minSecretLength)
	}

	if c.Auth.AccessTokenLifetime <= 0 {
		return fmt.Errorf("auth.access_token_lifetime must be positive")
	}
	if c.Auth.RefreshTokenLifetime <= 0 {
		return fmt.Errorf("auth.refresh_token_lifetime must be positive")
	}
	if c.Auth.RefreshTokenLifetime < c.Auth.AccessTokenLifetime {
		return fmt.Errorf("auth.refresh_token_lifetime must not be shorter than auth.access_token_lifetime")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.AccessTokenLifetimeRaw != "" {
		cfg.Auth.AccessTokenLifetime, err = time.ParseDuration(cfg.Auth.AccessTokenLifetimeRaw)
		if err != nil {
			return fmt.Errorf("parsing access_token_lifetime %q: %w", cfg.Auth.AccessTokenLifetimeRaw, err)
		}
	}

	if cfg.Auth.RefreshTokenLifetimeRaw != "" {
		cfg.Auth.RefreshTokenLifetime, err = time.ParseDuration(cfg.Auth.RefreshTokenLifetimeRaw)
		if err != nil {
			return fmt.Errorf("parsing refresh_token_lifetime %q: %w", cfg.Auth.RefreshTokenLifetimeRaw, err)
		}
	}

	return nil
}
