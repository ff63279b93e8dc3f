package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Relay     RelayConfig     `mapstructure:"relay"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	DLQ       DLQConfig       `mapstructure:"dlq"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the HTTP ingest/ops server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// WebhookConfig holds the destination WeCom webhook configuration.
type WebhookConfig struct {
	// URL is the group-robot webhook URL, usually already carrying ?key=.
	URL string `mapstructure:"url"`
	// Secret enables request signing when non-empty.
	Secret         string        `mapstructure:"secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxPayloadBytes is the destination's text content size limit.
	MaxPayloadBytes int `mapstructure:"max_payload_bytes"`
}

// RelayConfig holds pipeline configuration.
type RelayConfig struct {
	// AllowedChannels is the channel allow-list; empty allows all channels.
	AllowedChannels []string `mapstructure:"allowed_channels"`
	// BotUserID is the relay's own identity on the source platform.
	// Events authored by it are dropped to prevent loops.
	BotUserID string `mapstructure:"bot_user_id"`
	// Consumers is the number of delivery consumers. Tasks are partitioned
	// by channel so per-channel ordering holds for any value.
	Consumers      int           `mapstructure:"consumers"`
	QueueSize      int           `mapstructure:"queue_size"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// RateLimitConfig holds token-bucket parameters for outbound delivery.
type RateLimitConfig struct {
	// Burst is the bucket capacity.
	Burst int `mapstructure:"burst"`
	// PerMinute is the sustained refill rate in messages per minute.
	PerMinute float64 `mapstructure:"per_minute"`
}

// RetryConfig holds delivery retry parameters.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DLQConfig holds the optional Redis dead-letter store configuration.
// The store is enabled when RedisAddr is non-empty.
type DLQConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Stream        string `mapstructure:"stream"`
}

// HistoryConfig holds the optional PostgreSQL delivery-history configuration.
// History is enabled when DatabaseURL is non-empty.
type HistoryConfig struct {
	DatabaseURL    string        `mapstructure:"database_url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Default returns a Config with sensible defaults. The rate-limit and
// payload-size defaults match the WeCom group-robot documented limits
// (20 messages per minute, 2048-byte text content).
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Webhook: WebhookConfig{
			RequestTimeout:  8 * time.Second,
			MaxPayloadBytes: 2048,
		},
		Relay: RelayConfig{
			Consumers:      1,
			QueueSize:      256,
			EnqueueTimeout: 2 * time.Second,
			ShutdownGrace:  30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Burst:     20,
			PerMinute: 20,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   1 * time.Second,
			MaxDelay:    2 * time.Minute,
		},
		DLQ: DLQConfig{
			Stream: "relay:dlq",
		},
		History: HistoryConfig{
			PoolMin:        2,
			PoolMax:        10,
			ConnectTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory; a missing
// file is not an error, defaults and environment variables still apply.
// Environment variables with prefix WECOM_RELAY_ override file values,
// e.g. WECOM_RELAY_WEBHOOK_URL overrides webhook.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("WECOM_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports fatal configuration errors. The process must not start
// the pipeline when Validate fails.
func (c *Config) Validate() error {
	if c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required")
	}
	if c.Webhook.MaxPayloadBytes <= 0 {
		return fmt.Errorf("webhook.max_payload_bytes must be positive, got %d", c.Webhook.MaxPayloadBytes)
	}
	if c.Relay.Consumers <= 0 {
		return fmt.Errorf("relay.consumers must be positive, got %d", c.Relay.Consumers)
	}
	if c.Relay.QueueSize <= 0 {
		return fmt.Errorf("relay.queue_size must be positive, got %d", c.Relay.QueueSize)
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.burst must be positive, got %d", c.RateLimit.Burst)
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("ratelimit.per_minute must be positive, got %v", c.RateLimit.PerMinute)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %v", c.Retry.BaseDelay)
	}
	return nil
}

// setDefaults registers every default value with viper so that partial
// config files and env-only deployments resolve the remaining keys.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("webhook.request_timeout", d.Webhook.RequestTimeout)
	v.SetDefault("webhook.max_payload_bytes", d.Webhook.MaxPayloadBytes)

	v.SetDefault("relay.consumers", d.Relay.Consumers)
	v.SetDefault("relay.queue_size", d.Relay.QueueSize)
	v.SetDefault("relay.enqueue_timeout", d.Relay.EnqueueTimeout)
	v.SetDefault("relay.shutdown_grace", d.Relay.ShutdownGrace)

	v.SetDefault("ratelimit.burst", d.RateLimit.Burst)
	v.SetDefault("ratelimit.per_minute", d.RateLimit.PerMinute)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)

	v.SetDefault("dlq.stream", d.DLQ.Stream)

	v.SetDefault("history.pool_min", d.History.PoolMin)
	v.SetDefault("history.pool_max", d.History.PoolMax)
	v.SetDefault("history.connect_timeout", d.History.ConnectTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.output", d.Logging.Output)
}
