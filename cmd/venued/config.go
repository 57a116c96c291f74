// config.go - Configuration management for the venue daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config represents the daemon configuration
type Config struct {
	// Venue policy
	RevealDelaySeconds      int    `json:"reveal_delay_seconds"`
	CommitmentExpirySeconds int    `json:"commitment_expiry_seconds"`
	FeeRateBps              uint64 `json:"fee_rate_bps"`
	FeeCollector            string `json:"fee_collector"`
	MinOrderSize            uint64 `json:"min_order_size"`
	MaxOrderSize            uint64 `json:"max_order_size"`
	EnforceIcebergVisible   bool   `json:"enforce_iceberg_visible"`

	// Identities and listings
	Operator string   `json:"operator"`
	Assets   []string `json:"assets"`

	// File paths
	DataDir    string `json:"data_dir"`
	KeyDir     string `json:"key_dir"`
	LedgerPath string `json:"ledger_path"`

	// HTTP
	HTTPAddr string `json:"http_addr"`

	// Notifications
	KafkaEnabled     bool     `json:"kafka_enabled"`
	KafkaBrokers     []string `json:"kafka_brokers"`
	KafkaTopic       string   `json:"kafka_topic"`
	PublishIntervalS int      `json:"publish_interval_seconds"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting (per trader)
	RateMaxTokens  int `json:"rate_max_tokens"`
	RateRefillRate int `json:"rate_refill_rate"`

	// Housekeeping
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RevealDelaySeconds:      10,
		CommitmentExpirySeconds: 86400,
		FeeRateBps:              10,
		FeeCollector:            "venue:fees",
		MinOrderSize:            1,
		MaxOrderSize:            1_000_000_000,
		Operator:                "venue:operator",
		Assets:                  []string{"ASSET", "USD"},
		DataDir:                 "data",
		KeyDir:                  "keys",
		LedgerPath:              "ledger.json",
		HTTPAddr:                ":8080",
		KafkaEnabled:            false,
		KafkaBrokers:            []string{"localhost:9092"},
		KafkaTopic:              "venue-events",
		PublishIntervalS:        2,
		LogLevel:                "info",
		LogFile:                 "venue.log",
		RateMaxTokens:           20,
		RateRefillRate:          5,
		SweepIntervalSeconds:    30,
	}
}

// LoadConfig loads configuration from file or creates default, then applies
// environment overrides (a .env file is honored if present).
func LoadConfig(configPath string) (*Config, error) {
	var config *Config
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		config = &Config{}
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	} else {
		config = DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	_ = godotenv.Load()
	config.applyEnv()
	return config, nil
}

// applyEnv overrides file settings with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("VENUE_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("VENUE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VENUE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VENUE_KEY_DIR"); v != "" {
		c.KeyDir = v
	}
	if v := os.Getenv("VENUE_OPERATOR"); v != "" {
		c.Operator = v
	}
	if v := os.Getenv("VENUE_KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = strings.Split(v, ",")
		c.KafkaEnabled = true
	}
	if v := os.Getenv("VENUE_KAFKA_TOPIC"); v != "" {
		c.KafkaTopic = v
	}
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RevealDelaySeconds < 0 {
		return fmt.Errorf("reveal_delay_seconds must not be negative")
	}
	if c.CommitmentExpirySeconds <= c.RevealDelaySeconds {
		return fmt.Errorf("commitment_expiry_seconds must exceed reveal_delay_seconds")
	}
	if c.MinOrderSize == 0 {
		return fmt.Errorf("min_order_size must be positive")
	}
	if c.MaxOrderSize < c.MinOrderSize {
		return fmt.Errorf("max_order_size must be at least min_order_size")
	}
	if c.Operator == "" {
		return fmt.Errorf("operator must be set")
	}
	if c.FeeCollector == "" {
		return fmt.Errorf("fee_collector must be set")
	}
	if c.RateMaxTokens <= 0 || c.RateRefillRate <= 0 {
		return fmt.Errorf("rate limiter settings must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka_brokers must be set when kafka is enabled")
	}
	return nil
}
