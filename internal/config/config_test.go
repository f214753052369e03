package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

// TestLoadConfig_Defaults tests loading configuration with default values
func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")

	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 10*time.Second, config.Server.ShutdownTimeout)

	assert.Equal(t, []string{"localhost:9092"}, config.Kafka.Brokers)
	assert.Equal(t, "odds_updates", config.Kafka.OddsTopic)
	assert.Equal(t, "bet-engine", config.Kafka.GroupID)
	assert.Equal(t, "bet_events", config.Kafka.EventsTopic)

	assert.Equal(t, "localhost:6379", config.Redis.Addr)
	assert.Equal(t, "", config.Redis.Password)
	assert.Equal(t, 0, config.Redis.DB)
	assert.Equal(t, 5*time.Minute, config.Redis.QuoteTTL)
	assert.Equal(t, 24*time.Hour, config.Redis.SlipTTL)

	assert.Equal(t, 0.92, config.Pricing.Margin)
	assert.Equal(t, 0.10, config.Pricing.FloorFraction)
	assert.Equal(t, int32(2), config.Pricing.Precision)
	assert.Equal(t, "snapshot", config.Pricing.OddsPolicy)
	assert.Equal(t, 0.05, config.Pricing.OddsTolerance)

	assert.Equal(t, 2*time.Second, config.Ledger.LockTimeout)

	assert.Equal(t, 10, config.Slip.MaxLegs)
	assert.True(t, config.Slip.SameMarketRule)

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
}

// TestLoadConfig_WithFile tests loading configuration from file
func TestLoadConfig_WithFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
  read_timeout: 45s
  write_timeout: 45s

kafka:
  brokers:
    - broker1:9092
    - broker2:9092
  odds_topic: test_odds
  group_id: test_group
  events_topic: test_events

redis:
  addr: redis:6379
  password: test_password
  db: 1
  quote_ttl: 1m
  slip_ttl: 2h

pricing:
  margin: 0.90
  floor_fraction: 0.05
  odds_policy: tolerance
  odds_tolerance: 0.02

ledger:
  lock_timeout: 500ms

slip:
  max_legs: 4
  same_market_rule: false

logging:
  level: debug
  format: console
`)

	config, err := LoadConfig(path)

	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 45*time.Second, config.Server.ReadTimeout)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, config.Kafka.Brokers)
	assert.Equal(t, "test_odds", config.Kafka.OddsTopic)
	assert.Equal(t, "test_group", config.Kafka.GroupID)
	assert.Equal(t, "test_events", config.Kafka.EventsTopic)

	assert.Equal(t, "redis:6379", config.Redis.Addr)
	assert.Equal(t, "test_password", config.Redis.Password)
	assert.Equal(t, 1, config.Redis.DB)
	assert.Equal(t, time.Minute, config.Redis.QuoteTTL)
	assert.Equal(t, 2*time.Hour, config.Redis.SlipTTL)

	assert.Equal(t, 0.90, config.Pricing.Margin)
	assert.Equal(t, 0.05, config.Pricing.FloorFraction)
	assert.Equal(t, int32(2), config.Pricing.Precision)
	assert.Equal(t, "tolerance", config.Pricing.OddsPolicy)
	assert.Equal(t, 0.02, config.Pricing.OddsTolerance)

	assert.Equal(t, 500*time.Millisecond, config.Ledger.LockTimeout)
	assert.Equal(t, 4, config.Slip.MaxLegs)
	assert.False(t, config.Slip.SameMarketRule)

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
}

// TestLoadConfig_InvalidFile tests loading with non-existent file
func TestLoadConfig_InvalidFile(t *testing.T) {
	config, err := LoadConfig("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, config)
}

// TestLoadConfig_MalformedFile tests loading with malformed YAML
func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: [not closed\n")

	config, err := LoadConfig(path)

	assert.Error(t, err)
	assert.Nil(t, config)
}

// TestLoadConfig_PartialFile keeps defaults for keys the file omits
func TestLoadConfig_PartialFile(t *testing.T) {
	path := writeConfigFile(t, "pricing:\n  margin: 0.85\n")

	config, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 0.85, config.Pricing.Margin)
	assert.Equal(t, 0.10, config.Pricing.FloorFraction)
	assert.Equal(t, 8080, config.Server.Port)
}

// TestLoadConfig_EnvironmentVariables tests env overrides
func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	t.Setenv("BET_ENGINE_SERVER_PORT", "7777")
	t.Setenv("BET_ENGINE_REDIS_ADDR", "env-redis:6379")
	t.Setenv("BET_ENGINE_KAFKA_ODDS_TOPIC", "env_topic")
	t.Setenv("BET_ENGINE_PRICING_MARGIN", "0.88")
	t.Setenv("BET_ENGINE_LEDGER_LOCK_TIMEOUT", "3s")

	config, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, 7777, config.Server.Port)
	assert.Equal(t, "env-redis:6379", config.Redis.Addr)
	assert.Equal(t, "env_topic", config.Kafka.OddsTopic)
	assert.Equal(t, 0.88, config.Pricing.Margin)
	assert.Equal(t, 3*time.Second, config.Ledger.LockTimeout)
}

// TestLoadConfig_Invalid rejects settings no component could run with
func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"margin of one", "pricing:\n  margin: 1.0\n"},
		{"zero margin", "pricing:\n  margin: 0\n"},
		{"floor fraction of one", "pricing:\n  floor_fraction: 1.0\n"},
		{"unknown odds policy", "pricing:\n  odds_policy: best\n"},
		{"negative tolerance", "pricing:\n  odds_tolerance: -0.1\n"},
		{"no legs", "slip:\n  max_legs: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(writeConfigFile(t, tt.content))

			assert.Error(t, err)
			assert.Nil(t, config)
		})
	}
}

// TestToParams tests conversion to pricing parameters
func TestToParams(t *testing.T) {
	cfg := PricingConfig{
		Margin:        0.92,
		FloorFraction: 0.10,
		Precision:     2,
		OddsTolerance: 0.05,
	}

	params := cfg.ToParams()

	assert.True(t, decimal.NewFromFloat(0.92).Equal(params.Margin))
	assert.True(t, decimal.NewFromFloat(0.10).Equal(params.FloorFraction))
	assert.Equal(t, int32(2), params.Precision)
	assert.NoError(t, params.Validate())
	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.Tolerance()))
}

// TestToParams_ZeroValues tests conversion with zero values
func TestToParams_ZeroValues(t *testing.T) {
	cfg := PricingConfig{}

	params := cfg.ToParams()

	assert.True(t, params.Margin.IsZero())
	assert.True(t, params.FloorFraction.IsZero())
	assert.Error(t, params.Validate())
}
