package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"github.com/conduit-lang/revstore/internal/orm/cache"
)

// EnvPrefix prefixes every environment override, e.g. REVSTORE_DATABASE_HOST
const EnvPrefix = "REVSTORE"

// Config represents the revstore configuration
type Config struct {
	Schema   SchemaConfig   `mapstructure:"schema"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// SchemaConfig locates the model definitions
type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig represents database configuration. URL, when set, is used
// verbatim as the driver DSN.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig represents the entity cache configuration
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads path, or revstore.yml/revstore.yaml from the working directory
// when path is empty, then applies REVSTORE_ environment overrides. A missing
// default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("schema.path", "models.yaml")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "revstore:")
	v.SetDefault("redis.ttl", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("revstore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the MySQL driver data source name
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	cfg.DBName = d.Name
	return cfg.FormatDSN()
}

// CacheConfig converts the redis section for the entity cache
func (r RedisConfig) CacheConfig() cache.Config {
	return cache.Config{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
		TTL:      r.TTL,
	}
}

// SchemaPath resolves the schema path against the directory of the config
// file, when the path is relative
func SchemaPath(cfg *Config, configFile string) string {
	if filepath.IsAbs(cfg.Schema.Path) || configFile == "" {
		return cfg.Schema.Path
	}
	return filepath.Join(filepath.Dir(configFile), cfg.Schema.Path)
}

// GetProjectRoot walks up from the working directory to the first directory
// holding revstore.yml or revstore.yaml
func GetProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{"revstore.yml", "revstore.yaml"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no revstore.yml found")
		}
		dir = parent
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Schema.Path == "" {
		return fmt.Errorf("schema.path must not be empty")
	}
	if cfg.Database.URL == "" && (cfg.Database.Port < 1 || cfg.Database.Port > 65535) {
		return fmt.Errorf("database.port must be between 1 and 65535, got: %d", cfg.Database.Port)
	}
	if cfg.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative, got: %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	return nil
}
