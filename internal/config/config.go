// Package config loads walletctl configuration from defaults, an optional
// walletctl.yaml, WALLET_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	BaseURL  string `mapstructure:"base_url"`
	LogLevel string `mapstructure:"log_level"`

	// HTTP client
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// Resilience
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`

	// Session core
	SearchCacheTTL        time.Duration `mapstructure:"search_cache_ttl"`
	SearchCacheMaxEntries int           `mapstructure:"search_cache_max_entries"`
	LogoutTimeout         time.Duration `mapstructure:"logout_timeout"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OpsAddr      string `mapstructure:"ops_addr"`

	Fake FakeBackend `mapstructure:"fake"`
}

// FakeBackend configures the bundled development backend.
type FakeBackend struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
	RedisURL  string `mapstructure:"redis_url"`
}

// Defaults returns the built-in value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"base_url":                 "http://localhost:8000",
		"log_level":                "info",
		"http_timeout":             10 * time.Second,
		"max_retries":              2,
		"initial_backoff":          100 * time.Millisecond,
		"max_concurrency":          8,
		"search_cache_ttl":         15 * time.Second,
		"search_cache_max_entries": 256,
		"logout_timeout":           3 * time.Second,
		"otlp_endpoint":            "",
		"ops_addr":                 "",
		"fake.listen":              "127.0.0.1:8000",
		"fake.jwt_secret":          "wallet-dev-secret-change-me",
		"fake.redis_url":           "",
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"base-url":      "base_url",
	"log-level":     "log_level",
	"ops-addr":      "ops_addr",
	"listen":        "fake.listen",
	"redis-url":     "fake.redis_url",
	"otlp-endpoint": "otlp_endpoint",
}

// Load builds the configuration. cmd may be nil; configFile may be empty, in
// which case walletctl.yaml is looked up in the current directory and in
// $HOME/.config/walletctl. A missing file is not an error.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("walletctl")
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/walletctl")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("wallet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", c.BaseURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.SearchCacheTTL < 0 {
		return fmt.Errorf("search_cache_ttl must not be negative, got %s", c.SearchCacheTTL)
	}
	if c.SearchCacheMaxEntries < 0 {
		return fmt.Errorf("search_cache_max_entries must not be negative, got %d", c.SearchCacheMaxEntries)
	}
	if c.LogoutTimeout <= 0 {
		return fmt.Errorf("logout_timeout must be positive, got %s", c.LogoutTimeout)
	}
	return nil
}
