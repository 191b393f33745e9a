// Package config loads the engine configuration from file, environment
// variables and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all recognized options of the credential engine.
// Tags use mapstructure for Viper unmarshalling.
type Config struct {
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"` // empty selects the in-memory session cache
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// RefreshTokenTTLHour is the default refresh token lifetime.
	RefreshTokenTTLHour int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	// SubnetPrefixBits is the IPv4 prefix width of the session IP binding.
	SubnetPrefixBits int `mapstructure:"SUBNET_PREFIX_BITS"`
	// TokenLengthBytes is the entropy of minted tokens in bytes.
	TokenLengthBytes int `mapstructure:"TOKEN_LENGTH_BYTES"`
	// UAMismatchRevokes makes a user-agent mismatch revoke the session like
	// an IP or identity mismatch, instead of only rejecting the request.
	UAMismatchRevokes bool `mapstructure:"UA_MISMATCH_REVOKES"`
	// SessionCacheTTLMin is the read-side session cache entry lifetime.
	SessionCacheTTLMin int `mapstructure:"SESSION_CACHE_TTL_MIN"`
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHour) * time.Hour
}

// SessionCacheTTL returns the configured cache entry lifetime.
func (c *Config) SessionCacheTTL() time.Duration {
	return time.Duration(c.SessionCacheTTLMin) * time.Minute
}

// Load reads configuration from file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/gatekeep/")
	v.AddConfigPath("$HOME/.gatekeep")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/gatekeep_dev")
	v.SetDefault("MONGO_DB_NAME", "gatekeep_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PREFIX", "gatekeep")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "gatekeep")
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 24)
	v.SetDefault("SUBNET_PREFIX_BITS", 24)
	v.SetDefault("TOKEN_LENGTH_BYTES", 32)
	v.SetDefault("UA_MISMATCH_REVOKES", false)
	v.SetDefault("SESSION_CACHE_TTL_MIN", 5)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
