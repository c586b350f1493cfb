package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	UsageTTL     string `mapstructure:"usage_ttl"` // expiry of daily usage keys, empty disables
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BudgetConfig defines countdown and penalty behavior
type BudgetConfig struct {
	Timezone          string   `mapstructure:"timezone"`
	PenaltyMinutes    int      `mapstructure:"penalty_minutes"`
	WarningThresholds []string `mapstructure:"warning_thresholds"`
	TickInterval      string   `mapstructure:"tick_interval"`
}

// TelemetryConfig defines usage telemetry polling
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	PollInterval string `mapstructure:"poll_interval"`
	CacheSize    int    `mapstructure:"cache_size"`
}

// UsageConfig defines ledger retention
type UsageConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	PruneTime     string `mapstructure:"prune_time"`
}

// PolicyConfig defines where restriction policies are loaded from
type PolicyConfig struct {
	Dir string `mapstructure:"dir"` // empty uses the embedded policy
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("QINGHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults exposes the defaults to callers that build their own viper instance
func SetDefaults(v *viper.Viper) {
	setDefaults(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/qinghe/qinghe.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "qinghe")
	v.SetDefault("storage.redis.usage_ttl", "2160h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Budget defaults
	v.SetDefault("budget.timezone", "Local")
	v.SetDefault("budget.penalty_minutes", 5)
	v.SetDefault("budget.warning_thresholds", []string{"5m", "1m"})
	v.SetDefault("budget.tick_interval", "1s")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.poll_interval", "1m")
	v.SetDefault("telemetry.cache_size", 256)

	// Usage retention defaults
	v.SetDefault("usage.retention_days", 90)
	v.SetDefault("usage.prune_time", "03:00")

	// Policy defaults
	v.SetDefault("policy.dir", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9464)
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "bolt"
	case "bolt", "redis":
	default:
		return fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Storage.Type)
	}

	if cfg.Storage.Type == "bolt" {
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	if _, err := cfg.Budget.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Budget.Timezone, err)
	}

	if cfg.Budget.PenaltyMinutes <= 0 {
		return fmt.Errorf("penalty_minutes must be positive, got %d", cfg.Budget.PenaltyMinutes)
	}

	if _, err := cfg.Budget.Thresholds(); err != nil {
		return err
	}

	if d, err := time.ParseDuration(cfg.Budget.TickInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid tick_interval: %q", cfg.Budget.TickInterval)
	}

	if cfg.Telemetry.Enabled {
		if d, err := time.ParseDuration(cfg.Telemetry.PollInterval); err != nil || d <= 0 {
			return fmt.Errorf("invalid telemetry poll_interval: %q", cfg.Telemetry.PollInterval)
		}
	}

	if cfg.Usage.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", cfg.Usage.RetentionDays)
	}
	if _, err := time.Parse("15:04", cfg.Usage.PruneTime); err != nil {
		return fmt.Errorf("invalid prune_time %q: %w", cfg.Usage.PruneTime, err)
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	return nil
}

// Location resolves the configured timezone
func (b BudgetConfig) Location() (*time.Location, error) {
	if b.Timezone == "" || b.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(b.Timezone)
}

// Thresholds parses the warning thresholds
func (b BudgetConfig) Thresholds() ([]time.Duration, error) {
	thresholds := make([]time.Duration, 0, len(b.WarningThresholds))
	for _, raw := range b.WarningThresholds {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid warning threshold %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("warning threshold must be positive, got %q", raw)
		}
		thresholds = append(thresholds, d)
	}
	return thresholds, nil
}

// Penalty returns the penalty cost as a duration
func (b BudgetConfig) Penalty() time.Duration {
	return time.Duration(b.PenaltyMinutes) * time.Minute
}
