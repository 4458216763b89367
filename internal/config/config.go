// Package config loads vitals configuration from defaults, an optional YAML
// file, .env files and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Server   ServerConfig   `mapstructure:"server"`
	Service  ServiceConfig  `mapstructure:"service"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// ServiceConfig describes the service a Reporter speaks for.
type ServiceConfig struct {
	Name              string        `mapstructure:"name"`
	HeapLimitMB       uint64        `mapstructure:"heap_limit_mb"`
	RSSLimitMB        uint64        `mapstructure:"rss_limit_mb"`
	DiskPath          string        `mapstructure:"disk_path"`
	DiskThreshold     float64       `mapstructure:"disk_threshold"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	CheckTimeout      time.Duration `mapstructure:"check_timeout"`
}

// DatabaseConfig is optional; an empty Driver disables the database check.
type DatabaseConfig struct {
	Client   string `mapstructure:"client"`
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// RedisConfig is optional; an empty Host disables Redis.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ProbeConfig struct {
	Catalog       string        `mapstructure:"catalog"`
	Concurrency   int           `mapstructure:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Skew          time.Duration `mapstructure:"skew"`
	ReadyAttempts int           `mapstructure:"ready_attempts"`
	ReadyBackoff  time.Duration `mapstructure:"ready_backoff"`
	RPS           float64       `mapstructure:"rps"`
	Output        string        `mapstructure:"output"`
}

type WatchConfig struct {
	Listen   string        `mapstructure:"listen"`
	Interval time.Duration `mapstructure:"interval"`
	// Store is "memory" or "redis". RedisAddr, when set, selects the redis
	// store at that address regardless of Store.
	Store     string `mapstructure:"store"`
	RedisAddr string `mapstructure:"redis_addr"`
}

// SetDefaults registers production-safe defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")
	v.SetDefault("logger.level", "info")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"https://*", "http://localhost:3000"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("service.heap_limit_mb", 300)
	v.SetDefault("service.rss_limit_mb", 500)
	v.SetDefault("service.disk_path", "/")
	v.SetDefault("service.disk_threshold", 0.9)
	v.SetDefault("service.heartbeat_interval", "1s")
	v.SetDefault("service.check_timeout", "5s")

	v.SetDefault("database.client", "sqlx")
	v.SetDefault("database.port", "5432")

	v.SetDefault("redis.port", "6379")

	v.SetDefault("probe.catalog", "catalog.yaml")
	v.SetDefault("probe.concurrency", 8)
	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("probe.skew", "5s")
	v.SetDefault("probe.ready_attempts", 3)
	v.SetDefault("probe.ready_backoff", "500ms")
	v.SetDefault("probe.rps", 0)
	v.SetDefault("probe.output", "table")

	v.SetDefault("watch.listen", ":9099")
	v.SetDefault("watch.interval", "30s")
	v.SetDefault("watch.store", "memory")
	v.SetDefault("watch.redis_addr", "")
}

// bindEnv maps the fleet's historical variable names onto config keys.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"app.environment":   {"APP_ENV"},
		"logger.level":      {"LOG_LEVEL"},
		"server.address":    {"SERVER_ADDRESS"},
		"service.name":      {"SERVICE_NAME"},
		"database.driver":   {"DB_DRIVER"},
		"database.dsn":      {"DATABASE_URL"},
		"database.host":     {"PG_HOST", "DB_HOST"},
		"database.port":     {"PG_PORT", "DB_PORT"},
		"database.user":     {"PG_USER", "DB_USER"},
		"database.password": {"PG_PASSWORD", "DB_PASSWORD"},
		"database.name":     {"PG_DB", "DB_NAME"},
		"redis.host":        {"REDIS_HOST"},
		"redis.port":        {"REDIS_PORT"},
		"redis.password":    {"REDIS_PASSWORD"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// loadEnvFiles loads .env.local then .env; missing files are ignored.
func loadEnvFiles() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration into a Config. cfgFile may be empty, in which case
// ./vitals.yaml and ./config/vitals.yaml are tried and their absence is not
// an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("vitals")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("VITALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// DatabaseDSN returns the configured DSN, building a postgres URL from the
// discrete fields when no DSN was given.
func (d DatabaseConfig) DatabaseDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

// Enabled reports whether a Redis host was configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

// Addr is host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }
