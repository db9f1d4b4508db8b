package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig configures the SQLite store and its connection pool.
// PoolSize is fixed for the life of the process.
type DatabaseConfig struct {
	Path                    string        `mapstructure:"path"`
	PoolSize                int           `mapstructure:"pool_size"`
	AcquireTimeout          time.Duration `mapstructure:"acquire_timeout"`
	BusyTimeout             time.Duration `mapstructure:"busy_timeout"`
	CacheSizeKB             int           `mapstructure:"cache_size_kb"`
	Synchronous             string        `mapstructure:"synchronous"`
	AllowConcurrentSessions bool          `mapstructure:"allow_concurrent_sessions"`
}

type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	LatestTTL time.Duration `mapstructure:"latest_ttl"`
}

// Enabled reports whether a redis host was configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type MonitoringConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENSORLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Load config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.path", "./data/sensor_data.db")
	v.SetDefault("database.pool_size", 8)
	v.SetDefault("database.acquire_timeout", "5s")
	v.SetDefault("database.busy_timeout", "5s")
	v.SetDefault("database.cache_size_kb", 10000)
	v.SetDefault("database.synchronous", "NORMAL")
	v.SetDefault("database.allow_concurrent_sessions", false)

	// Redis defaults; an empty host disables the latest-reading cache
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.latest_ttl", "30s")

	// Monitoring defaults
	v.SetDefault("monitoring.metrics_enabled", true)
}

var synchronousModes = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}

func validateConfig(config *Config) error {
	db := &config.Database
	if db.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if db.PoolSize < 1 {
		return fmt.Errorf("database pool_size must be at least 1, got %d", db.PoolSize)
	}
	if db.AcquireTimeout <= 0 {
		return fmt.Errorf("database acquire_timeout must be positive")
	}
	if db.BusyTimeout < 0 {
		return fmt.Errorf("database busy_timeout must not be negative")
	}
	db.Synchronous = strings.ToUpper(db.Synchronous)
	if !synchronousModes[db.Synchronous] {
		return fmt.Errorf("database synchronous mode %q is not supported", db.Synchronous)
	}
	if config.Redis.Enabled() && config.Redis.LatestTTL <= 0 {
		return fmt.Errorf("redis latest_ttl must be positive when redis is enabled")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}
	return nil
}
