// Package config loads and validates the service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the IAL_ prefix (e.g., IAL_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a
// config.yaml in local development and with pure environment variables in
// containerized deployments.
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
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TrustedProxies lists the proxy addresses/CIDRs whose X-Forwarded-For is
	// honoured when resolving the requesting origin. Empty trusts none.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// UpstreamConfig points at the compute API the dispatcher forwards to
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// Backend is "postgres" or "memory"
	Backend            string `mapstructure:"backend"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds instance action logging configuration
type AuditConfig struct {
	// Enabled determines if mutating operations are recorded at all
	Enabled bool `mapstructure:"enabled"`
	// OnExtractionError is "record" (store with empty detail) or "skip"
	OnExtractionError string `mapstructure:"on_extraction_error"`
	// Header names the identity and tenant signals are read from
	UserHeader   string `mapstructure:"user_header"`
	TokenHeader  string `mapstructure:"token_header"`
	TenantHeader string `mapstructure:"tenant_header"`
	// Shippers configures secondary destinations for every stored record
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Type is the shipper type (webhook, file, redis, s3)
	Type    string              `mapstructure:"type"`
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
	Redis   *AuditRedisConfig   `mapstructure:"redis"`
	S3      *AuditS3Config      `mapstructure:"s3"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AuditRedisConfig holds Redis stream shipper configuration
type AuditRedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// AuditS3Config holds S3 archive shipper configuration
type AuditS3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.trusted_proxies",

		// Upstream
		"upstream.base_url",
		"upstream.timeout",

		// Database
		"database.backend",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",
		"audit.on_extraction_error",
		"audit.user_header",
		"audit.token_header",
		"audit.tenant_header",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
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
		v.AddConfigPath("/etc/instance-action-log")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("IAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	for i := range cfg.Audit.Shippers {
		s := &cfg.Audit.Shippers[i]
		if s.Redis != nil {
			s.Redis.Password = expandEnv(s.Redis.Password)
		}
		if s.S3 != nil {
			s.S3.AccessKeyID = expandEnv(s.S3.AccessKeyID)
			s.S3.SecretAccessKey = expandEnv(s.S3.SecretAccessKey)
		}
		if s.Webhook != nil {
			for k, hv := range s.Webhook.Headers {
				s.Webhook.Headers[k] = expandEnv(hv)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8774)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.trusted_proxies", []string{})

	// Upstream defaults
	v.SetDefault("upstream.base_url", "http://localhost:18774")
	v.SetDefault("upstream.timeout", "60s")

	// Database defaults
	v.SetDefault("database.backend", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "instance_action_log")
	v.SetDefault("database.user", "actionlog")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "instance-action-log")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.on_extraction_error", "record")
	v.SetDefault("audit.user_header", "X-Auth-User")
	v.SetDefault("audit.token_header", "X-Auth-Token")
	v.SetDefault("audit.tenant_header", "X-Auth-Project-Id")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}

	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	default:
		return fmt.Errorf("invalid database backend: %s (must be postgres or memory)", c.Database.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.Telemetry.Metrics.Enabled && (c.Telemetry.Metrics.PrometheusPort < 1 || c.Telemetry.Metrics.PrometheusPort > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", c.Telemetry.Metrics.PrometheusPort)
	}

	switch c.Audit.OnExtractionError {
	case "", "record", "skip":
	default:
		return fmt.Errorf("invalid audit.on_extraction_error: %s (must be record or skip)", c.Audit.OnExtractionError)
	}

	for i, s := range c.Audit.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "webhook":
			if s.Webhook == nil || s.Webhook.URL == "" {
				return fmt.Errorf("audit.shippers[%d].webhook.url is required for webhook shipper", i)
			}
		case "file":
			if s.File == nil || s.File.Path == "" {
				return fmt.Errorf("audit.shippers[%d].file.path is required for file shipper", i)
			}
		case "redis":
			if s.Redis == nil || s.Redis.Addr == "" {
				return fmt.Errorf("audit.shippers[%d].redis.addr is required for redis shipper", i)
			}
		case "s3":
			if s.S3 == nil || s.S3.Bucket == "" || s.S3.Region == "" {
				return fmt.Errorf("audit.shippers[%d].s3.bucket and region are required for s3 shipper", i)
			}
		default:
			return fmt.Errorf("invalid audit.shippers[%d].type: %s (must be webhook, file, redis, or s3)", i, s.Type)
		}
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
