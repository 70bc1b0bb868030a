package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	E2B     E2BConfig     `mapstructure:"e2b"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// E2BConfig holds the sandbox hosting service configuration
type E2BConfig struct {
	APIURL string `mapstructure:"api_url"`
	Domain string `mapstructure:"domain"`
	// APIKey is the fallback key for calls that do not carry one.
	APIKey            string `mapstructure:"api_key"`
	SandboxURL        string `mapstructure:"sandbox_url"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
}

// SandboxConfig holds broker configuration
type SandboxConfig struct {
	DedupeResolves bool `mapstructure:"dedupe_resolves"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// EnvPrefix prefixes environment overrides, e.g. SBXBROKER_SERVER_TRANSPORT
const EnvPrefix = "SBXBROKER"

var validLogLevels = map[string]bool{
	"debug":  true,
	"info":   true,
	"warn":   true,
	"error":  true,
	"dpanic": true,
	"panic":  true,
	"fatal":  true,
}

// New loads and validates the application configuration from config.yaml
// in the working directory or ./config
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from path, or searches the default locations when
// path is empty. A missing config file in the default locations is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("e2b.api_key", EnvPrefix+"_E2B_API_KEY", "E2B_API_KEY"); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("e2b.api_url", "https://api.e2b.app")
	v.SetDefault("e2b.domain", "e2b.app")
	v.SetDefault("e2b.api_key", "")
	v.SetDefault("e2b.sandbox_url", "")
	v.SetDefault("e2b.request_timeout_sec", 60)

	v.SetDefault("sandbox.dedupe_resolves", true)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got: %d", c.Server.HTTPPort)
	}

	if err := validateURL("e2b.api_url", c.E2B.APIURL); err != nil {
		return err
	}

	if c.E2B.SandboxURL != "" {
		if err := validateURL("e2b.sandbox_url", c.E2B.SandboxURL); err != nil {
			return err
		}
	}

	if strings.TrimSpace(c.E2B.Domain) == "" {
		return fmt.Errorf("e2b.domain must not be empty")
	}

	if c.E2B.RequestTimeoutSec <= 0 {
		return fmt.Errorf("e2b.request_timeout_sec must be positive, got: %d", c.E2B.RequestTimeoutSec)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s: %q, must be an absolute http(s) URL", key, raw)
	}
	return nil
}

// GetRequestTimeout returns the control plane request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.E2B.RequestTimeoutSec) * time.Second
}
