package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the food hub order service
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Orders    OrdersConfig    `yaml:"orders"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Journal   JournalConfig   `yaml:"journal"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Migrations string `yaml:"migrations"`
}

// RabbitMQConfig holds RabbitMQ connection configuration. An empty host
// disables the broker and events are delivered to local listeners only.
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

// RedisConfig holds the idempotency cache connection. An empty addr keeps
// keys in process.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	// PendingTTL bounds how long an unfinished checkout holds its key
	PendingTTL     time.Duration `yaml:"pending_ttl"`
}

// OrdersConfig holds the business switches of the order engine
type OrdersConfig struct {
	EnforceTransitions     bool `yaml:"enforce_transitions"`
	RedactForeignSubOrders bool `yaml:"redact_foreign_sub_orders"`
	StrictHubCheck         bool `yaml:"strict_hub_check"`
	LookupConcurrency      int  `yaml:"lookup_concurrency"`
}

// RealtimeConfig holds listener settings for the event stream
type RealtimeConfig struct {
	BufferSize        int           `yaml:"buffer_size"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
}

// JournalConfig holds the notification journal location. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig holds OpenTelemetry exporter settings
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// Load reads configuration from a YAML file, applies environment overrides
// and fills defaults for everything left unset.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes raw YAML into a Config
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides connection settings from the environment
func (c *Config) applyEnv() error {
	c.Database.Host = getEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.User = getEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = getEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("POSTGRES_DBNAME", c.Database.Database)
	c.RabbitMQ.Host = getEnv("RABBITMQ_HOST", c.RabbitMQ.Host)
	c.RabbitMQ.User = getEnv("RABBITMQ_USER", c.RabbitMQ.User)
	c.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", c.RabbitMQ.Password)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Journal.Path = getEnv("JOURNAL_PATH", c.Journal.Path)
	c.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)

	var err error
	if c.Database.Port, err = getEnvInt("POSTGRES_PORT", c.Database.Port); err != nil {
		return err
	}
	if c.RabbitMQ.Port, err = getEnvInt("RABBITMQ_PORT", c.RabbitMQ.Port); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Migrations == "" {
		c.Database.Migrations = "migrations"
	}
	if c.RabbitMQ.Host != "" && c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.Redis.IdempotencyTTL == 0 {
		c.Redis.IdempotencyTTL = 24 * time.Hour
	}
	if c.Redis.PendingTTL == 0 {
		c.Redis.PendingTTL = time.Minute
	}
	if c.Orders.LookupConcurrency <= 0 {
		c.Orders.LookupConcurrency = 8
	}
	if c.Realtime.BufferSize <= 0 {
		c.Realtime.BufferSize = 16
	}
	if c.Realtime.KeepAliveInterval == 0 {
		c.Realtime.KeepAliveInterval = 25 * time.Second
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "foodhub-orders"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "local"
	}
}

// Validate checks that the mandatory settings are present
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port, c.RabbitMQ.VHost)
}

// BrokerEnabled reports whether a RabbitMQ host is configured
func (c *Config) BrokerEnabled() bool {
	return c.RabbitMQ.Host != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return n, nil
}
