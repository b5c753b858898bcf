package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	ListenAddr        string `mapstructure:"listen_addr"`
	PublicBaseURL     string `mapstructure:"public_base_url"`
	StoreBackend      string `mapstructure:"store_backend"`
	DBPath            string `mapstructure:"db_path"`
	UploadPath        string `mapstructure:"upload_path"`
	MaxUploadBytes    int64  `mapstructure:"max_upload_bytes"`
	LogLevel          string `mapstructure:"log_level"`
	LogFile           string `mapstructure:"log_file"`
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db"`
	RedisChannel      string `mapstructure:"redis_channel"`
	JanitorSchedule   string `mapstructure:"janitor_schedule"`
	CORSAllowedOrigin string `mapstructure:"cors_allowed_origin"`
}

var defaults = map[string]any{
	"listen_addr":         ":3000",
	"public_base_url":     "",
	"store_backend":       StoreMemory,
	"db_path":             "/data/rifas.db",
	"upload_path":         "/data/uploads",
	"max_upload_bytes":    10 << 20,
	"log_level":           "info",
	"log_file":            "",
	"redis_addr":          "",
	"redis_password":      "",
	"redis_db":            0,
	"redis_channel":       "rifas:auction_events",
	"janitor_schedule":    "@every 1h",
	"cors_allowed_origin": "*",
}

// Load reads configuration from, in increasing precedence: built-in defaults,
// an optional config.yaml, a .env file in the working directory and the
// process environment.
func Load() (*Config, error) {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	v := viper.New()
	v.AllowEmptyEnv(true)
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/rifas/")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %q or %q)", c.StoreBackend, StoreMemory, StoreSQLite)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}
