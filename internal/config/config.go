package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	ChannelsFile   string `mapstructure:"channels_file"`
	KeywordsFile   string `mapstructure:"keywords_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	ConfigServiceURL     string        `mapstructure:"config_service_url"`
	ConfigServiceToken   string        `mapstructure:"config_service_token"`
	ConfigTimeoutSeconds int64         `mapstructure:"config_service_timeout_seconds"`
	ConfigTimeout        time.Duration `mapstructure:"-"`

	ConfigFetchMaxRetries        int           `mapstructure:"config_fetch_max_retries"`
	ConfigFetchBackoffMs         int64         `mapstructure:"config_fetch_backoff_ms"`
	ConfigFetchBackoff           time.Duration `mapstructure:"-"`
	ConfigFetchBackoffMultiplier float64       `mapstructure:"config_fetch_backoff_multiplier"`

	GatewayURL               string        `mapstructure:"gateway_url"`
	GatewayToken             string        `mapstructure:"gateway_token"`
	GatewayTimeoutSeconds    int64         `mapstructure:"gateway_timeout_seconds"`
	GatewayTimeout           time.Duration `mapstructure:"-"`
	GatewayRequestsPerMinute int           `mapstructure:"gateway_requests_per_minute"`

	ScrapeIntervalSeconds int64         `mapstructure:"default_scrape_interval_seconds"`
	ScrapeInterval        time.Duration `mapstructure:"-"`

	StorageType         string        `mapstructure:"storage_type"`
	BBoltPath           string        `mapstructure:"bbolt_path"`
	PostgresDSN         string        `mapstructure:"postgres_dsn"`
	PostTTLSeconds      int64         `mapstructure:"post_ttl_seconds"`
	RunTTLSeconds       int64         `mapstructure:"run_ttl_seconds"`
	PostTTL             time.Duration `mapstructure:"-"`
	RunTTL              time.Duration `mapstructure:"-"`
	MaintenanceSchedule string        `mapstructure:"maintenance_schedule"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "leadscout")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("channels_file", "./configs/channels.yaml")
	v.SetDefault("keywords_file", "./configs/keywords.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")

	v.SetDefault("config_service_url", "")
	v.SetDefault("config_service_token", "")
	v.SetDefault("config_service_timeout_seconds", 10)
	v.SetDefault("config_fetch_max_retries", 2)
	v.SetDefault("config_fetch_backoff_ms", 500)
	v.SetDefault("config_fetch_backoff_multiplier", 2.0)

	v.SetDefault("gateway_url", "http://localhost:9850")
	v.SetDefault("gateway_token", "")
	v.SetDefault("gateway_timeout_seconds", 60)
	v.SetDefault("gateway_requests_per_minute", 60)

	v.SetDefault("default_scrape_interval_seconds", 900) // seconds

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/scout.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("post_ttl_seconds", int64((14*24*time.Hour)/time.Second))
	v.SetDefault("run_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("maintenance_schedule", "0 */6 * * *")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ConfigTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid config_service_timeout_seconds (must be positive seconds)")
	}
	cfg.ConfigTimeout = time.Duration(cfg.ConfigTimeoutSeconds) * time.Second

	if cfg.ConfigFetchMaxRetries < 0 {
		return nil, fmt.Errorf("invalid config_fetch_max_retries (must be >= 0)")
	}
	if cfg.ConfigFetchBackoffMs <= 0 {
		return nil, fmt.Errorf("invalid config_fetch_backoff_ms (must be positive milliseconds)")
	}
	cfg.ConfigFetchBackoff = time.Duration(cfg.ConfigFetchBackoffMs) * time.Millisecond
	if cfg.ConfigFetchBackoffMultiplier < 1 {
		return nil, fmt.Errorf("invalid config_fetch_backoff_multiplier (must be >= 1)")
	}

	if cfg.GatewayTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid gateway_timeout_seconds (must be positive seconds)")
	}
	cfg.GatewayTimeout = time.Duration(cfg.GatewayTimeoutSeconds) * time.Second
	if cfg.GatewayRequestsPerMinute <= 0 {
		return nil, fmt.Errorf("invalid gateway_requests_per_minute (must be positive)")
	}

	if cfg.ScrapeIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid default_scrape_interval_seconds (must be positive seconds)")
	}
	cfg.ScrapeInterval = time.Duration(cfg.ScrapeIntervalSeconds) * time.Second

	if cfg.PostTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid post_ttl_seconds (must be positive seconds)")
	}
	if cfg.RunTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid run_ttl_seconds (must be positive seconds)")
	}
	cfg.PostTTL = time.Duration(cfg.PostTTLSeconds) * time.Second
	cfg.RunTTL = time.Duration(cfg.RunTTLSeconds) * time.Second

	return &cfg, nil
}
