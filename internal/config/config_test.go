package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
		{
			name:  "mixed static and env vars",
			input: "static_value: 123\napi_key: ${TEST_KEY}",
			envVars: map[string]string{
				"TEST_KEY": "dynamic_key",
			},
			expected: "static_value: 123\napi_key: dynamic_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `exchange:
  rest_url: "https://api.binance.com"
  ws_api_url: "wss://ws-api.binance.com:443/ws-api/v3"
  ws_stream_url: "wss://stream.binance.com:9443/ws"
  api_key: "${TEST_EXCHANGE_API_KEY}"

database:
  host: "localhost"
  port: 5432
  user: "tradecore"
  password: "${TEST_DB_PASSWORD}"
  name: "tradecore"

script_host:
  binary_path: "./bin/scripthost"
  pinned_hash_hex: "0000000000000000000000000000000000000000000000000000000000000000"

paths:
  trading_algos_dir: "trading_algos"
  shmem_dir: "shmem"
  sockets_dir: "sockets"

system:
  log_level: "INFO"
  cancel_on_exit: true

trading:
  symbol: "BTCUSDT"
  asset_a: "USDT"
  asset_b: "BTC"
  restart_cooldown_sec: 10
  ipc_connect_retries: 3
  ipc_connect_backoff_sec: 1
  price_anchor_period_sec: 60
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_EXCHANGE_API_KEY", "test_api_key_from_env")
	os.Setenv("TEST_DB_PASSWORD", "test_password_from_env")
	defer os.Unsetenv("TEST_EXCHANGE_API_KEY")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	config, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	assert.Equal(t, Secret("test_api_key_from_env"), config.Exchange.APIKey)
	assert.Equal(t, Secret("test_password_from_env"), config.Database.Password)
}

func TestConfig_Validate_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange.rest_url")
}

func TestConfig_Validate_BadPinnedHash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptHost.PinnedHashHex = "too-short"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinned_hash_hex")
}

func TestConfig_Validate_Default(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange.APIKey = Secret("my_super_secret_api_key")
	cfg.Database.Password = Secret("my_super_secret_db_password")

	output := cfg.String()

	assert.Contains(t, output, "REDACTED")
	assert.NotContains(t, output, "my_super_secret_api_key")
	assert.NotContains(t, output, "my_super_secret_db_password")
}
