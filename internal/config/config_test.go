package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"LISTEN_ADDR", "REQUEST_TIMEOUT",
	"TVL_BASE_URL", "COINS_BASE_URL", "YIELDS_BASE_URL",
	"CACHE_TTL", "HTTP_TIMEOUT", "RETRY_COUNT",
	"TVL_RPS", "COINS_RPS", "YIELDS_RPS",
	"PROTOCOL_SLUG", "PROTOCOL_NAME", "BASE_COIN", "DERIVATIVE_COIN",
	"LOG_LEVEL",
}

func clearEnv() {
	for _, key := range allKeys {
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	clearEnv()

	// Set up environment variables
	envVars := map[string]string{
		"LISTEN_ADDR":     "127.0.0.1:9000",
		"REQUEST_TIMEOUT": "10s",
		"TVL_BASE_URL":    "http://localhost:1111",
		"COINS_BASE_URL":  "http://localhost:2222",
		"YIELDS_BASE_URL": "http://localhost:3333",
		"CACHE_TTL":       "2m",
		"HTTP_TIMEOUT":    "3s",
		"RETRY_COUNT":     "4",
		"TVL_RPS":         "1.5",
		"COINS_RPS":       "0",
		"YIELDS_RPS":      "7",
		"PROTOCOL_SLUG":   "lido",
		"PROTOCOL_NAME":   "lido",
		"BASE_COIN":       "ethereum:0xaaa",
		"DERIVATIVE_COIN": "ethereum:0xbbb",
		"LOG_LEVEL":       "debug",
	}

	// Set environment variables
	for key, value := range envVars {
		os.Setenv(key, value)
		defer os.Unsetenv(key)
	}

	// Load configuration
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	// Verify all fields are set correctly
	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"ListenAddr", cfg.ListenAddr, "127.0.0.1:9000"},
		{"RequestTimeout", cfg.RequestTimeout, 10 * time.Second},
		{"TVLBaseURL", cfg.TVLBaseURL, "http://localhost:1111"},
		{"CoinsBaseURL", cfg.CoinsBaseURL, "http://localhost:2222"},
		{"YieldsBaseURL", cfg.YieldsBaseURL, "http://localhost:3333"},
		{"CacheTTL", cfg.CacheTTL, 2 * time.Minute},
		{"HTTPTimeout", cfg.HTTPTimeout, 3 * time.Second},
		{"RetryCount", cfg.RetryCount, 4},
		{"TVLRPS", cfg.TVLRPS, 1.5},
		{"CoinsRPS", cfg.CoinsRPS, 0.0},
		{"YieldsRPS", cfg.YieldsRPS, 7.0},
		{"ProtocolSlug", cfg.ProtocolSlug, "lido"},
		{"ProtocolName", cfg.ProtocolName, "lido"},
		{"BaseCoin", cfg.BaseCoin, "ethereum:0xaaa"},
		{"DerivativeCoin", cfg.DerivativeCoin, "ethereum:0xbbb"},
		{"SlogLevel", cfg.SlogLevel(), slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLoad_WithDefaults(t *testing.T) {
	clearEnv()

	// Load configuration
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	// Verify defaults are used
	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"ListenAddr", cfg.ListenAddr, ":8080"},
		{"RequestTimeout", cfg.RequestTimeout, 30 * time.Second},
		{"TVLBaseURL", cfg.TVLBaseURL, "https://api.llama.fi"},
		{"CoinsBaseURL", cfg.CoinsBaseURL, "https://coins.llama.fi"},
		{"YieldsBaseURL", cfg.YieldsBaseURL, "https://yields.llama.fi"},
		{"CacheTTL", cfg.CacheTTL, 60 * time.Second},
		{"HTTPTimeout", cfg.HTTPTimeout, 15 * time.Second},
		{"RetryCount", cfg.RetryCount, 2},
		{"ProtocolSlug", cfg.ProtocolSlug, "ether.fi"},
		{"BaseCoin", cfg.BaseCoin, "ethereum:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
		{"SlogLevel", cfg.SlogLevel(), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	// Test cases for invalid settings
	tests := []struct {
		name        string
		setupEnv    map[string]string
		wantErrText []string
	}{
		{
			name:        "non-positive cache TTL",
			setupEnv:    map[string]string{"CACHE_TTL": "-5s"},
			wantErrText: []string{"invalid configuration", "CACHE_TTL"},
		},
		{
			name:        "unparseable duration",
			setupEnv:    map[string]string{"HTTP_TIMEOUT": "soon"},
			wantErrText: []string{"failed to unmarshal config"},
		},
		{
			name:        "non-http URL",
			setupEnv:    map[string]string{"COINS_BASE_URL": "ftp://coins"},
			wantErrText: []string{"COINS_BASE_URL"},
		},
		{
			name:        "negative retries and rate",
			setupEnv:    map[string]string{"RETRY_COUNT": "-1", "YIELDS_RPS": "-2"},
			wantErrText: []string{"RETRY_COUNT", "YIELDS_RPS"},
		},
		{
			name:        "unknown log level",
			setupEnv:    map[string]string{"LOG_LEVEL": "loud"},
			wantErrText: []string{"LOG_LEVEL"},
		},
		{
			name:        "blank protocol",
			setupEnv:    map[string]string{"PROTOCOL_SLUG": "   "},
			wantErrText: []string{"PROTOCOL_SLUG"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv()

			// Set up test-specific environment
			for key, value := range tt.setupEnv {
				os.Setenv(key, value)
				defer os.Unsetenv(key)
			}

			// Attempt to load configuration
			_, err := Load()
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}

			// Verify error message contains expected text
			for _, want := range tt.wantErrText {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Load() error = %q, want error containing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := &Config{LogLevel: "info"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for empty config, got nil")
	}

	for _, key := range []string{"LISTEN_ADDR", "TVL_BASE_URL", "CACHE_TTL", "HTTP_TIMEOUT", "BASE_COIN"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Validate() error = %q, want it to mention %s", err.Error(), key)
		}
	}
}
