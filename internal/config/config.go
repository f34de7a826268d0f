package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the CLI and the server
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Awattar  AwattarConfig  `mapstructure:"awattar"`
	Tariff   TariffConfig   `mapstructure:"tariff"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AwattarConfig struct {
	Region            string `mapstructure:"region"`
	BaseURL           string `mapstructure:"base_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

type TariffConfig struct {
	IncludeVAT  bool   `mapstructure:"include_vat"`
	BaseFeeCent string `mapstructure:"base_fee_cent"`
}

// MQTTConfig enables publishing results when Broker is set
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// Load reads configuration from the optional file at path, a .env file in
// the working directory and AWATTPRICE_* environment variables, in
// increasing order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AWATTPRICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", filepath.Join(home, ".awattprice", "awattprice.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("awattar.region", "DE")
	v.SetDefault("awattar.base_url", "")
	v.SetDefault("awattar.requests_per_minute", 10)

	v.SetDefault("tariff.include_vat", true)
	v.SetDefault("tariff.base_fee_cent", "0")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "awattprice/cheapest")
	v.SetDefault("mqtt.client_id", "awattprice")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("cache.size", 128)
}
