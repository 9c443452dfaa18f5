package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the DeFi data service.
type Config struct {
	// HTTP server
	ListenAddr     string        `mapstructure:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Base URLs for the upstream APIs (configurable for testing)
	TVLBaseURL    string `mapstructure:"tvl_base_url"`
	CoinsBaseURL  string `mapstructure:"coins_base_url"`
	YieldsBaseURL string `mapstructure:"yields_base_url"`

	// Upstream client behavior
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	RetryCount  int           `mapstructure:"retry_count"`

	// Requests per second per upstream API; 0 disables limiting
	TVLRPS    float64 `mapstructure:"tvl_rps"`
	CoinsRPS  float64 `mapstructure:"coins_rps"`
	YieldsRPS float64 `mapstructure:"yields_rps"`

	// Tracked protocol and the token pair it is priced in
	ProtocolSlug   string `mapstructure:"protocol_slug"`
	ProtocolName   string `mapstructure:"protocol_name"`
	BaseCoin       string `mapstructure:"base_coin"`
	DerivativeCoin string `mapstructure:"derivative_coin"`

	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"listen_addr":     ":8080",
	"request_timeout": 30 * time.Second,
	"tvl_base_url":    "https://api.llama.fi",
	"coins_base_url":  "https://coins.llama.fi",
	"yields_base_url": "https://yields.llama.fi",
	"cache_ttl":       60 * time.Second,
	"http_timeout":    15 * time.Second,
	"retry_count":     2,
	"tvl_rps":         5.0,
	"coins_rps":       5.0,
	"yields_rps":      2.0,
	"protocol_slug":   "ether.fi",
	"protocol_name":   "ether.fi",
	"base_coin":       "ethereum:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	"derivative_coin": "ethereum:0x35fA164735182de50811E8e2E824cFb9B6118ac2",
	"log_level":       "info",
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values, which take
// precedence over the defaults. Every key is read from the environment
// variable of the same name in upper case:
//   - LISTEN_ADDR, REQUEST_TIMEOUT
//   - TVL_BASE_URL, COINS_BASE_URL, YIELDS_BASE_URL
//   - CACHE_TTL, HTTP_TIMEOUT, RETRY_COUNT
//   - TVL_RPS, COINS_RPS, YIELDS_RPS
//   - PROTOCOL_SLUG, PROTOCOL_NAME, BASE_COIN, DERIVATIVE_COIN
//   - LOG_LEVEL (debug, info, warn or error)
//
// Durations use Go syntax, e.g. "60s" or "1m30s".
func Load() (*Config, error) {
	v := viper.New()

	// Set up environment variable support
	v.SetEnvPrefix("") // No prefix, use full names
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.defifetcher")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key := range defaults {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", strings.ToUpper(key), err)
		}
	}

	// Unmarshal config into struct
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var invalid []string

	if c.ListenAddr == "" {
		invalid = append(invalid, "LISTEN_ADDR (empty)")
	}
	for name, raw := range map[string]string{
		"TVL_BASE_URL":    c.TVLBaseURL,
		"COINS_BASE_URL":  c.CoinsBaseURL,
		"YIELDS_BASE_URL": c.YieldsBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			invalid = append(invalid, name+" (not an http(s) URL)")
		}
	}
	if c.CacheTTL <= 0 {
		invalid = append(invalid, "CACHE_TTL (must be positive)")
	}
	if c.HTTPTimeout <= 0 {
		invalid = append(invalid, "HTTP_TIMEOUT (must be positive)")
	}
	if c.RequestTimeout < 0 {
		invalid = append(invalid, "REQUEST_TIMEOUT (must not be negative)")
	}
	if c.RetryCount < 0 {
		invalid = append(invalid, "RETRY_COUNT (must not be negative)")
	}
	for name, rps := range map[string]float64{
		"TVL_RPS":    c.TVLRPS,
		"COINS_RPS":  c.CoinsRPS,
		"YIELDS_RPS": c.YieldsRPS,
	} {
		if rps < 0 {
			invalid = append(invalid, name+" (must not be negative)")
		}
	}
	for name, value := range map[string]string{
		"PROTOCOL_SLUG":   c.ProtocolSlug,
		"PROTOCOL_NAME":   c.ProtocolName,
		"BASE_COIN":       c.BaseCoin,
		"DERIVATIVE_COIN": c.DerivativeCoin,
	} {
		if strings.TrimSpace(value) == "" {
			invalid = append(invalid, name+" (empty)")
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		invalid = append(invalid, "LOG_LEVEL ("+err.Error()+")")
	}

	if len(invalid) > 0 {
		// map iteration order is random
		sort.Strings(invalid)
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}
