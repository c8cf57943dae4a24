package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete service configuration. Values load from a TOML
// file, with environment variables taking precedence for deploy-time
// overrides (DATABASE_URL, REDIS_ADDR, GATEWAY_API_KEY, ...).
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Billing  BillingConfig  `toml:"billing"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// GatewayConfig holds the payment gateway credentials and the bounded
// timeout applied to every outbound gateway call.
type GatewayConfig struct {
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	WebhookSecret  string `toml:"webhook_secret"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BillingConfig holds the operator-level billing policies.
type BillingConfig struct {
	TickIntervalMinutes int `toml:"tick_interval_minutes"`
	InvoiceDueDays      int `toml:"invoice_due_days"`
	PollAfterMinutes    int `toml:"poll_after_minutes"`
	WorkerCap           int `toml:"worker_cap"`

	// AutoCancelOverdueAfterDays > 0 cancels subscriptions whose invoice
	// stays overdue that many days past its due date. Zero (the default)
	// keeps them past_due indefinitely for an operator to resolve.
	AutoCancelOverdueAfterDays int `toml:"auto_cancel_overdue_after_days"`
}

// Load reads the TOML file at path (skipped when path is empty or missing),
// applies environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	config := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, config); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	if config.Database.URL == "" {
		return nil, fmt.Errorf("database url is required (set DATABASE_URL or [database] url)")
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			config.Redis.DB = db
		}
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		config.Gateway.APIKey = v
	}
	if v := os.Getenv("GATEWAY_API_SECRET"); v != "" {
		config.Gateway.APISecret = v
	}
	if v := os.Getenv("GATEWAY_WEBHOOK_SECRET"); v != "" {
		config.Gateway.WebhookSecret = v
	}
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		config.Gateway.BaseURL = v
	}
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Redis.Addr == "" {
		config.Redis.Addr = "localhost:6379"
	}
	if config.Gateway.TimeoutSeconds == 0 {
		config.Gateway.TimeoutSeconds = 15
	}
	if config.Billing.TickIntervalMinutes == 0 {
		config.Billing.TickIntervalMinutes = 5
	}
	if config.Billing.InvoiceDueDays == 0 {
		config.Billing.InvoiceDueDays = 7
	}
	if config.Billing.PollAfterMinutes == 0 {
		config.Billing.PollAfterMinutes = 30
	}
	if config.Billing.WorkerCap == 0 {
		config.Billing.WorkerCap = 5
	}
}

// GatewayTimeout returns the bounded timeout for gateway calls.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// TickInterval returns the scheduler cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Billing.TickIntervalMinutes) * time.Minute
}

// PollAfter returns how long a sent invoice may wait before a status poll.
func (c *Config) PollAfter() time.Duration {
	return time.Duration(c.Billing.PollAfterMinutes) * time.Minute
}
