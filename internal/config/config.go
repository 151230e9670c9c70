// Package config loads and validates the audit service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the BST_ prefix (e.g., BST_DATABASE_HOST
// overrides database.host in the YAML). The same binary runs with a config.yaml
// in local development and with pure environment variables in containerized
// deployments, with no recompilation or different binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds the connection settings for the Redis instance backing the
// unusual-login checker and its alert rate limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds application log configuration
type LoggingConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// TelemetryConfig holds metrics configuration
type TelemetryConfig struct {
	MetricsPort int `mapstructure:"metrics_port"`
}

// AuditConfig holds the audit pipeline configuration: which secondary-stream
// shippers are active and the unusual-login check settings.
type AuditConfig struct {
	Shippers     []ShipperConfig   `mapstructure:"shippers"`
	UnusualLogin UnusualLoginCheck `mapstructure:"unusual_login"`
}

// ShipperConfig describes one secondary-stream destination.
type ShipperConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Type    string         `mapstructure:"type"` // "file" or "webhook"
	File    FileShipper    `mapstructure:"file"`
	Webhook WebhookShipper `mapstructure:"webhook"`
}

// FileShipper holds file shipper configuration
type FileShipper struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// WebhookShipper holds webhook shipper configuration
type WebhookShipper struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval time.Duration     `mapstructure:"flush_interval"`
}

// UnusualLoginCheck configures the fire-and-forget geo-velocity check.
type UnusualLoginCheck struct {
	Enabled       bool `mapstructure:"enabled"`
	AlertsPerHour int  `mapstructure:"alerts_per_hour"`
}

// ArchiveConfig holds the nightly export job configuration.
type ArchiveConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Backend string             `mapstructure:"backend"` // "local" or "s3"
	Local   LocalArchiveConfig `mapstructure:"local"`
	S3      S3ArchiveConfig    `mapstructure:"s3"`
}

// LocalArchiveConfig holds local filesystem archive configuration
type LocalArchiveConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// S3ArchiveConfig holds S3 archive configuration
type S3ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// Load reads configuration from the given path (or the default search paths
// when empty), applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bastion-audit")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("BST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures.
	// AutomaticEnv() alone does not surface them through Unmarshal().
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Archive.S3.SecretAccessKey = expandEnv(cfg.Archive.S3.SecretAccessKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "bastion_audit")
	v.SetDefault("database.user", "bastion")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.level", "info")

	v.SetDefault("telemetry.metrics_port", 9090)

	v.SetDefault("audit.unusual_login.enabled", false)
	v.SetDefault("audit.unusual_login.alerts_per_hour", 3)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.local.base_path", "./archive")
}

func bindEnvVars(v *viper.Viper) {
	keys := []string{
		"server.host", "server.port",
		"database.host", "database.port", "database.name", "database.user",
		"database.password", "database.ssl_mode",
		"redis.addr", "redis.password", "redis.db",
		"logging.format", "logging.level",
		"telemetry.metrics_port",
		"audit.unusual_login.enabled", "audit.unusual_login.alerts_per_hour",
		"archive.enabled", "archive.backend", "archive.local.base_path",
		"archive.s3.endpoint", "archive.s3.region", "archive.s3.bucket",
		"archive.s3.access_key_id", "archive.s3.secret_access_key",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// expandEnv resolves ${VAR} references so secrets can be injected indirectly.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}"))
	}
	return value
}

// Validate checks the configuration for inconsistencies that would only
// surface at runtime otherwise.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	for i, s := range c.Audit.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "file":
			if s.File.Path == "" {
				return fmt.Errorf("audit.shippers[%d]: file.path is required", i)
			}
		case "webhook":
			if s.Webhook.URL == "" {
				return fmt.Errorf("audit.shippers[%d]: webhook.url is required", i)
			}
		default:
			return fmt.Errorf("audit.shippers[%d]: unknown type %q", i, s.Type)
		}
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case "local":
			if c.Archive.Local.BasePath == "" {
				return fmt.Errorf("archive.local.base_path is required")
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return fmt.Errorf("archive.s3.bucket is required")
			}
		default:
			return fmt.Errorf("unknown archive backend: %s", c.Archive.Backend)
		}
	}
	return nil
}
