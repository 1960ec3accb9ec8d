package core

import (
	"fmt"
	"strings"
	"time"
)

type DispatchConfig struct {
	TickInterval time.Duration `koanf:"tick_interval" mapstructure:"tick_interval"`
	BatchSize    int           `koanf:"batch_size" mapstructure:"batch_size"`
	HTTPTimeout  time.Duration `koanf:"http_timeout" mapstructure:"http_timeout"`
}

type RetryConfig struct {
	MaxRetries int           `koanf:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	MaxDelay   time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
}

type RetentionConfig struct {
	Window        time.Duration `koanf:"window" mapstructure:"window"`
	SweepInterval time.Duration `koanf:"sweep_interval" mapstructure:"sweep_interval"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	UserAgent   string          `koanf:"user_agent" mapstructure:"user_agent"`
	Dispatch    DispatchConfig  `koanf:"dispatch" mapstructure:"dispatch"`
	Retry       RetryConfig     `koanf:"retry" mapstructure:"retry"`
	Retention   RetentionConfig `koanf:"retention" mapstructure:"retention"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhooks",
		UserAgent:   "go-webhooks/1.0",
		Dispatch: DispatchConfig{
			TickInterval: time.Second,
			BatchSize:    10,
			HTTPTimeout:  30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			BaseDelay:  time.Second,
			MaxDelay:   5 * time.Minute,
		},
		Retention: RetentionConfig{
			Window:        30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatch.TickInterval < 0 {
		return fmt.Errorf("core: dispatch.tick_interval must not be negative")
	}
	if c.Dispatch.BatchSize < 0 {
		return fmt.Errorf("core: dispatch.batch_size must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry.max_retries must not be negative")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("core: retry delays must not be negative")
	}
	if c.Retention.Window < 0 {
		return fmt.Errorf("core: retention.window must not be negative")
	}
	return nil
}
