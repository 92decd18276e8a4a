package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the trader. Loaded once at startup;
// never re-read while the loop is running.
type Config struct {
	// Brokerage credentials and endpoints
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	BaseURL     string `json:"base_url"`
	DataBaseURL string `json:"data_base_url"`

	// Market data provider (expirations, chains, bars, earnings)
	MarketDataURL string `json:"market_data_url"`

	// Daily schedule (local exchange hours, 24h clock)
	MarketCloseTime int    `json:"market_close_time"`
	MarketOpenTime  int    `json:"market_open_time"`
	Timezone        string `json:"timezone"`

	// Order defaults
	DefaultLimitPrice float64 `json:"default_limit_price"`
	DefaultQuantity   int     `json:"default_quantity"`

	// Universe
	Tickers []string `json:"tickers"`

	// Scan behavior
	ScanWindowDays    int `json:"scan_window_days"`
	ScanWorkers       int `json:"scan_workers"`
	NearLegOffsetDays int `json:"near_leg_offset_days"`

	// Position closing scope. When false (default) only positions recorded
	// in the trade journal are closed; true liquidates every account position.
	CloseAllAccountPositions bool `json:"close_all_account_positions"`

	// Persistence
	TradeLogPath  string `json:"trade_log_path"`
	HealthLogPath string `json:"health_log_path"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Reporting surface
	ReportPort string `json:"report_port"`

	// Optional alert webhook (best-effort, failures swallowed)
	AlertWebhookURL string `json:"alert_webhook_url"`

	Gateway  GatewayConfig  `json:"gateway"`
	Redis    RedisConfig    `json:"redis"`
	Database DatabaseConfig `json:"database"`
}

// GatewayConfig holds circuit breaker and retry configuration.
type GatewayConfig struct {
	FailureThreshold   int     `json:"failure_threshold"`
	RecoveryTimeoutSec int     `json:"recovery_timeout_sec"`
	MaxRetries         int     `json:"max_retries"`
	BackoffCapSec      float64 `json:"backoff_cap_sec"`
	RequestTimeoutSec  int     `json:"request_timeout_sec"`
}

// RecoveryTimeout returns the breaker recovery timeout as a duration.
func (g GatewayConfig) RecoveryTimeout() time.Duration {
	return time.Duration(g.RecoveryTimeoutSec) * time.Second
}

// RequestTimeout returns the per-request timeout as a duration.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSec) * time.Second
}

// RedisConfig holds the optional quote-cache configuration.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

// DatabaseConfig holds the optional PostgreSQL journal configuration.
type DatabaseConfig struct {
	URL      string `json:"url"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
	Enabled  bool   `json:"enabled"`
}

// Required configuration keys. A config file missing any of these is a
// fatal startup error.
var requiredKeys = []string{
	"api_key",
	"api_secret",
	"base_url",
	"market_close_time",
	"market_open_time",
	"default_limit_price",
}

// Load reads configuration from the given JSON file, applies environment
// overrides for secrets, and validates required keys.
func Load(path string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	// Presence check before decoding so a missing key is distinguishable
	// from a zero value.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			if hasEnvOverride(key) {
				continue
			}
			return nil, fmt.Errorf("missing required configuration: %s", key)
		}
	}

	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config with every optional knob pre-filled.
func defaults() *Config {
	return &Config{
		DataBaseURL:       "https://data.alpaca.markets",
		MarketDataURL:     "https://api.tradier.com",
		Timezone:          "America/New_York",
		DefaultQuantity:   10,
		ScanWindowDays:    1,
		ScanWorkers:       10,
		NearLegOffsetDays: 7,
		TradeLogPath:      "trades.csv",
		HealthLogPath:     "health.ndjson",
		LogLevel:          "info",
		LogFormat:         "json",
		ReportPort:        "8089",
		Gateway: GatewayConfig{
			FailureThreshold:   5,
			RecoveryTimeoutSec: 60,
			MaxRetries:         3,
			BackoffCapSec:      60,
			RequestTimeoutSec:  30,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Database: DatabaseConfig{
			MaxConns: 5,
			MinConns: 1,
		},
	}
}

// validate checks value ranges after decoding.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key must not be empty")
	}
	if c.APISecret == "" {
		return fmt.Errorf("api_secret must not be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.MarketCloseTime < 0 || c.MarketCloseTime > 23 {
		return fmt.Errorf("market_close_time must be an hour in [0,23], got %d", c.MarketCloseTime)
	}
	if c.MarketOpenTime < 0 || c.MarketOpenTime > 23 {
		return fmt.Errorf("market_open_time must be an hour in [0,23], got %d", c.MarketOpenTime)
	}
	if c.DefaultQuantity <= 0 {
		return fmt.Errorf("default_quantity must be positive, got %d", c.DefaultQuantity)
	}
	if c.NearLegOffsetDays < 7 || c.NearLegOffsetDays > 10 {
		return fmt.Errorf("near_leg_offset_days must be in [7,10], got %d", c.NearLegOffsetDays)
	}
	if c.ScanWorkers <= 0 {
		return fmt.Errorf("scan_workers must be positive, got %d", c.ScanWorkers)
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when database.enabled is true")
	}
	return nil
}

// loadEnvFile tries common .env locations; absence is not an error.
func loadEnvFile() {
	paths := []string{".env", filepath.Join("..", ".env")}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Environment overrides keep credentials out of the config file.
var envOverrides = map[string]string{
	"api_key":    "IVCRUSH_API_KEY",
	"api_secret": "IVCRUSH_API_SECRET",
	"base_url":   "IVCRUSH_BASE_URL",
}

func hasEnvOverride(key string) bool {
	env, ok := envOverrides[key]
	return ok && os.Getenv(env) != ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IVCRUSH_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("IVCRUSH_API_SECRET"); v != "" {
		cfg.APISecret = v
	}
	if v := os.Getenv("IVCRUSH_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("IVCRUSH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("IVCRUSH_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv("IVCRUSH_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
}
