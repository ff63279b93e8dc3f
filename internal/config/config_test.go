package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load without config file: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Webhook.MaxPayloadBytes != 2048 {
		t.Errorf("webhook.max_payload_bytes = %d, want 2048", cfg.Webhook.MaxPayloadBytes)
	}
	if cfg.RateLimit.Burst != 20 || cfg.RateLimit.PerMinute != 20 {
		t.Errorf("ratelimit = %d burst %v/min, want 20 burst 20/min", cfg.RateLimit.Burst, cfg.RateLimit.PerMinute)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("retry.max_attempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 2*time.Minute {
		t.Errorf("retry delays = %v/%v, want 1s/2m", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	}
	if cfg.Relay.Consumers != 1 {
		t.Errorf("relay.consumers = %d, want 1", cfg.Relay.Consumers)
	}
	if cfg.DLQ.Stream != "relay:dlq" {
		t.Errorf("dlq.stream = %q, want relay:dlq", cfg.DLQ.Stream)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Output != "stdout" {
		t.Errorf("logging = %s/%s, want info/stdout", cfg.Logging.Level, cfg.Logging.Output)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WECOM_RELAY_WEBHOOK_URL", "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=abc")
	t.Setenv("WECOM_RELAY_RATELIMIT_PER_MINUTE", "10")
	t.Setenv("WECOM_RELAY_RELAY_CONSUMERS", "4")
	t.Setenv("WECOM_RELAY_LOGGING_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Webhook.URL != "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=abc" {
		t.Errorf("webhook.url = %q, env override not applied", cfg.Webhook.URL)
	}
	if cfg.RateLimit.PerMinute != 10 {
		t.Errorf("ratelimit.per_minute = %v, want 10", cfg.RateLimit.PerMinute)
	}
	if cfg.Relay.Consumers != 4 {
		t.Errorf("relay.consumers = %d, want 4", cfg.Relay.Consumers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Webhook.URL = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=abc"
		return &cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing webhook url", func(c *Config) { c.Webhook.URL = "" }},
		{"zero payload bytes", func(c *Config) { c.Webhook.MaxPayloadBytes = 0 }},
		{"zero consumers", func(c *Config) { c.Relay.Consumers = 0 }},
		{"zero queue size", func(c *Config) { c.Relay.QueueSize = 0 }},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"negative rate", func(c *Config) { c.RateLimit.PerMinute = -1 }},
		{"zero max attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"zero base delay", func(c *Config) { c.Retry.BaseDelay = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
