package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/cypherlabdev/bet-engine-service/pkg/pricing"
)

// Config holds all configuration for bet-engine-service
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Slip    SlipConfig    `mapstructure:"slip"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	OddsTopic    string        `mapstructure:"odds_topic"` // market updates consumed
	GroupID      string        `mapstructure:"group_id"`
	EventsTopic  string        `mapstructure:"events_topic"` // bet lifecycle events produced
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	QuoteTTL time.Duration `mapstructure:"quote_ttl"`
	SlipTTL  time.Duration `mapstructure:"slip_ttl"`
}

// PricingConfig holds cash-out pricing and odds acceptance settings
type PricingConfig struct {
	Margin        float64 `mapstructure:"margin"`         // fraction of fair value offered (0.92)
	FloorFraction float64 `mapstructure:"floor_fraction"` // minimum offer as a fraction of stake
	Precision     int32   `mapstructure:"precision"`      // currency decimal places
	OddsPolicy    string  `mapstructure:"odds_policy"`    // snapshot, tolerance
	OddsTolerance float64 `mapstructure:"odds_tolerance"` // relative drift allowed under tolerance
}

// LedgerConfig holds wallet ledger configuration
type LedgerConfig struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// SlipConfig holds slip policy rules
type SlipConfig struct {
	MaxLegs        int  `mapstructure:"max_legs"`
	SameMarketRule bool `mapstructure:"same_market_rule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.odds_topic", "odds_updates")
	v.SetDefault("kafka.group_id", "bet-engine")
	v.SetDefault("kafka.events_topic", "bet_events")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.quote_ttl", 5*time.Minute)
	v.SetDefault("redis.slip_ttl", 24*time.Hour)

	v.SetDefault("pricing.margin", 0.92)
	v.SetDefault("pricing.floor_fraction", 0.10)
	v.SetDefault("pricing.precision", 2)
	v.SetDefault("pricing.odds_policy", "snapshot")
	v.SetDefault("pricing.odds_tolerance", 0.05)

	v.SetDefault("ledger.lock_timeout", 2*time.Second)

	v.SetDefault("slip.max_legs", 10)
	v.SetDefault("slip.same_market_rule", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// BET_ENGINE_PRICING_MARGIN overrides pricing.margin
	v.SetEnvPrefix("BET_ENGINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks settings that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	if err := c.Pricing.ToParams().Validate(); err != nil {
		return fmt.Errorf("invalid pricing config: %w", err)
	}
	switch c.Pricing.OddsPolicy {
	case "snapshot", "tolerance":
	default:
		return fmt.Errorf("invalid pricing config: unknown odds_policy %q", c.Pricing.OddsPolicy)
	}
	if c.Pricing.OddsTolerance < 0 {
		return fmt.Errorf("invalid pricing config: odds_tolerance must not be negative")
	}
	if c.Slip.MaxLegs < 1 {
		return fmt.Errorf("invalid slip config: max_legs must be at least 1")
	}
	return nil
}

// ToParams converts config to pricing parameters
func (c *PricingConfig) ToParams() pricing.Params {
	return pricing.Params{
		Margin:        decimal.NewFromFloat(c.Margin),
		FloorFraction: decimal.NewFromFloat(c.FloorFraction),
		Precision:     c.Precision,
	}
}

// Tolerance returns the odds tolerance as a decimal
func (c *PricingConfig) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.OddsTolerance)
}
