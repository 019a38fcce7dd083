// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Database    DatabaseConfig    `yaml:"database"`
	ScriptHost  ScriptHostConfig  `yaml:"script_host"`
	Paths       PathsConfig       `yaml:"paths"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Trading     TradingConfig     `yaml:"trading"`
}

// ExchangeConfig contains the exchange connectivity settings named in the
// external interfaces: REST_URL, WS_API_URL, WS_STREAM_URL, API_KEY.
type ExchangeConfig struct {
	RESTURL     string `yaml:"rest_url" validate:"required"`
	WSAPIURL    string `yaml:"ws_api_url" validate:"required"`
	WSStreamURL string `yaml:"ws_stream_url" validate:"required"`
	APIKey      Secret `yaml:"api_key" validate:"required"`
}

// DatabaseConfig contains the Postgres connection settings: DB_HOST/USER/PASS/NAME.
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	User     string `yaml:"user" validate:"required"`
	Password Secret `yaml:"password" validate:"required"`
	Name     string `yaml:"name" validate:"required"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds a libpq-style connection string for pgx.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, string(d.Password), d.Name, sslMode)
}

// ScriptHostConfig contains the script host subprocess settings: the binary
// to spawn and PY_EXECUTOR_HASH, the pinned SHA-256 it must match.
type ScriptHostConfig struct {
	BinaryPath     string   `yaml:"binary_path" validate:"required"`
	PinnedHashHex  string   `yaml:"pinned_hash_hex" validate:"required,len=64"`
	DenyTokens     []string `yaml:"deny_tokens"`
	AllowedImports []string `yaml:"allowed_imports"`
}

// PathsConfig contains the filesystem layout: trading_algos/, shmem/, sockets/.
type PathsConfig struct {
	TradingAlgosDir string `yaml:"trading_algos_dir" validate:"required"`
	ShmemDir        string `yaml:"shmem_dir" validate:"required"`
	SocketsDir      string `yaml:"sockets_dir" validate:"required"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	BroadcastPoolSize   int `yaml:"broadcast_pool_size" validate:"min=1,max=1000"`
	BroadcastPoolBuffer int `yaml:"broadcast_pool_buffer" validate:"min=1,max=10000"`
}

// TradingConfig contains the trading-pair and timing parameters the
// Algorithm Supervisor is built around: the restart-after-failure cooldown,
// the IPC connect retry budget, and the symbol/asset split a market order
// is placed against.
type TradingConfig struct {
	Symbol               string `yaml:"symbol" validate:"required"`
	AssetA               string `yaml:"asset_a" validate:"required"`
	AssetB               string `yaml:"asset_b" validate:"required"`
	RestartCooldownSec   int    `yaml:"restart_cooldown_sec" validate:"min=1"`
	IPCConnectRetries    int    `yaml:"ipc_connect_retries" validate:"min=1"`
	IPCConnectBackoffSec int    `yaml:"ipc_connect_backoff_sec" validate:"min=1"`
	PriceAnchorPeriodSec int    `yaml:"price_anchor_period_sec" validate:"min=1"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateExchangeConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateDatabaseConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateScriptHostConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validatePathsConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateTradingConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateExchangeConfig() error {
	if c.Exchange.RESTURL == "" {
		return ValidationError{Field: "exchange.rest_url", Message: "REST_URL is required"}
	}
	if c.Exchange.WSAPIURL == "" {
		return ValidationError{Field: "exchange.ws_api_url", Message: "WS_API_URL is required"}
	}
	if c.Exchange.WSStreamURL == "" {
		return ValidationError{Field: "exchange.ws_stream_url", Message: "WS_STREAM_URL is required"}
	}
	if c.Exchange.APIKey == "" {
		return ValidationError{Field: "exchange.api_key", Message: "API_KEY is required"}
	}
	return nil
}

func (c *Config) validateDatabaseConfig() error {
	if c.Database.Host == "" {
		return ValidationError{Field: "database.host", Message: "DB_HOST is required"}
	}
	if c.Database.User == "" {
		return ValidationError{Field: "database.user", Message: "DB_USER is required"}
	}
	if c.Database.Password == "" {
		return ValidationError{Field: "database.password", Message: "DB_PASS is required"}
	}
	if c.Database.Name == "" {
		return ValidationError{Field: "database.name", Message: "DB_NAME is required"}
	}
	return nil
}

func (c *Config) validateScriptHostConfig() error {
	if c.ScriptHost.BinaryPath == "" {
		return ValidationError{Field: "script_host.binary_path", Message: "binary path is required"}
	}
	if len(c.ScriptHost.PinnedHashHex) != 64 {
		return ValidationError{
			Field:   "script_host.pinned_hash_hex",
			Value:   c.ScriptHost.PinnedHashHex,
			Message: "PY_EXECUTOR_HASH must be a 64-character hex SHA-256 digest",
		}
	}
	return nil
}

func (c *Config) validatePathsConfig() error {
	if c.Paths.TradingAlgosDir == "" {
		return ValidationError{Field: "paths.trading_algos_dir", Message: "trading_algos directory is required"}
	}
	if c.Paths.ShmemDir == "" {
		return ValidationError{Field: "paths.shmem_dir", Message: "shmem directory is required"}
	}
	if c.Paths.SocketsDir == "" {
		return ValidationError{Field: "paths.sockets_dir", Message: "sockets directory is required"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateTradingConfig() error {
	if c.Trading.Symbol == "" {
		return ValidationError{Field: "trading.symbol", Message: "symbol is required"}
	}
	if c.Trading.AssetA == "" || c.Trading.AssetB == "" {
		return ValidationError{Field: "trading.asset_a/asset_b", Message: "both assets are required"}
	}
	if c.Trading.RestartCooldownSec <= 0 {
		return ValidationError{Field: "trading.restart_cooldown_sec", Message: "must be positive"}
	}
	return nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c
	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			RESTURL:     "https://api.binance.com",
			WSAPIURL:    "wss://ws-api.binance.com:443/ws-api/v3",
			WSStreamURL: "wss://stream.binance.com:9443/ws",
			APIKey:      "test_api_key",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "tradecore",
			Password: "test_password",
			Name:     "tradecore",
			SSLMode:  "disable",
		},
		ScriptHost: ScriptHostConfig{
			BinaryPath:     "./bin/scripthost",
			PinnedHashHex:  strings.Repeat("0", 64),
			DenyTokens:     []string{"import", "read", "write", "file", "exec", "eval", "socket", "http", "requests", "urllib", "sys", "traceback", "__"},
			AllowedImports: []string{"math", "numpy", "pandas"},
		},
		Paths: PathsConfig{
			TradingAlgosDir: "trading_algos",
			ShmemDir:        "shmem",
			SocketsDir:      "sockets",
		},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
		},
		Concurrency: ConcurrencyConfig{
			BroadcastPoolSize:   16,
			BroadcastPoolBuffer: 256,
		},
		Trading: TradingConfig{
			Symbol:               "BTCUSDT",
			AssetA:               "USDT",
			AssetB:               "BTC",
			RestartCooldownSec:   10,
			IPCConnectRetries:    3,
			IPCConnectBackoffSec: 1,
			PriceAnchorPeriodSec: 60,
		},
	}
}
