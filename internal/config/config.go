// Package config loads and validates all runtime configuration for the
// order-saga-coupon-system core, following the teacher's envconfig +
// explicit Validate() pattern and extending it with one struct per
// §6 "Configuration" entry of the specification.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	DB          DBConfig
	Log         LogConfig
	Lock        LockConfig
	EventLog    EventLogConfig
	Saga        SagaConfig
	Outbox      OutboxConfig
	Coupon      CouponConfig
	AsyncStatus AsyncStatusConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"order_saga_coupon_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// LockConfig configures the KV-Lock primitive (§4.1).
type LockConfig struct {
	RedisAddr string `envconfig:"LOCK_REDIS_ADDR" default:"localhost:6379"`
	WaitMS    int    `envconfig:"LOCK_WAIT_MS" default:"5000"`
	LeaseMS   int    `envconfig:"LOCK_LEASE_MS" default:"2000"`
}

// EventLogConfig configures the Kafka-compatible broker backing the
// external event log (§4.5/§6) and the coupon partitioned log (§4.6).
type EventLogConfig struct {
	Brokers              string `envconfig:"EVENT_LOG_BROKERS" default:"localhost:9092"`
	OrderTopic           string `envconfig:"EVENT_LOG_ORDER_TOPIC" default:"order-events"`
	OrderTopicPartitions int32  `envconfig:"EVENT_LOG_ORDER_TOPIC_PARTITIONS" default:"8"`
	CouponTopic          string `envconfig:"EVENT_LOG_COUPON_TOPIC" default:"coupon-requests"`
}

// BrokerList splits Brokers on commas.
func (c EventLogConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

// SagaConfig configures per-step lock wait/lease (§6).
type SagaConfig struct {
	StepWaitMS  int `envconfig:"SAGA_STEP_WAIT_TIME_MS" default:"5000"`
	StepLeaseMS int `envconfig:"SAGA_STEP_LEASE_TIME_MS" default:"2000"`
}

// OutboxConfig configures the dispatcher (§4.5/§6).
type OutboxConfig struct {
	PollIntervalMS int `envconfig:"OUTBOX_POLL_INTERVAL_MS" default:"5000"`
	BatchSize      int `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	MaxRetries     int `envconfig:"OUTBOX_MAX_RETRIES" default:"3"`
}

// CouponConfig configures the coupon request pipeline (§4.6/§6).
type CouponConfig struct {
	Partitions       int `envconfig:"COUPON_PARTITIONS" default:"10"`
	MaxRetries       int `envconfig:"COUPON_MAX_RETRIES" default:"3"`
	EnqueueTimeoutMS int `envconfig:"COUPON_ENQUEUE_TIMEOUT_MS" default:"5000"`
	WorkerDeadlineMS int `envconfig:"COUPON_WORKER_DEADLINE_MS" default:"5000"`
}

// AsyncStatusConfig configures the async status TTLs (§3/§6).
type AsyncStatusConfig struct {
	TTLPendingMS  int64 `envconfig:"ASYNC_STATUS_TTL_PENDING_MS" default:"1800000"`
	TTLTerminalMS int64 `envconfig:"ASYNC_STATUS_TTL_TERMINAL_MS" default:"86400000"`
}

// Load parses environment variables into the Config struct and validates them.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil {
		return fmt.Errorf("SERVER_PORT must be a valid number: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	if c.Server.ShutdownTimeout < 1 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be at least 1 second, got %d", c.Server.ShutdownTimeout)
	}
	if c.Server.ShutdownTimeout > 300 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must not exceed 300 seconds, got %d", c.Server.ShutdownTimeout)
	}

	if c.DB.Host == "" {
		return fmt.Errorf("DB_HOST cannot be empty")
	}
	if c.DB.User == "" {
		return fmt.Errorf("DB_USER cannot be empty")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("DB_NAME cannot be empty")
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.DB.Port)
	}

	if c.DB.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DB.MaxConns)
	}
	if c.DB.MinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be at least 0, got %d", c.DB.MinConns)
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DB.MinConns, c.DB.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DB.SSLMode] {
		return fmt.Errorf("DB_SSLMODE must be one of: disable, allow, prefer, require, verify-ca, verify-full; got %q", c.DB.SSLMode)
	}

	if c.Coupon.Partitions < 1 {
		return fmt.Errorf("COUPON_PARTITIONS must be at least 1, got %d", c.Coupon.Partitions)
	}
	if c.Coupon.MaxRetries < 0 {
		return fmt.Errorf("COUPON_MAX_RETRIES must be at least 0, got %d", c.Coupon.MaxRetries)
	}
	if c.Outbox.MaxRetries < 0 {
		return fmt.Errorf("OUTBOX_MAX_RETRIES must be at least 0, got %d", c.Outbox.MaxRetries)
	}
	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be at least 1, got %d", c.Outbox.BatchSize)
	}

	return nil
}

// WarnIfDefaultCredentials returns human-readable warnings for any
// database credential still at its insecure local-dev default. It
// never fails startup — only Validate does that — callers log these
// at warn level.
func (c *Config) WarnIfDefaultCredentials() []string {
	var warnings []string
	if c.DB.Password == "postgres" {
		warnings = append(warnings, "DB_PASSWORD is set to the default value; change it in production")
	}
	if c.DB.User == "postgres" {
		warnings = append(warnings, "DB_USER is set to the default value; consider a dedicated service account in production")
	}
	if c.DB.SSLMode == "disable" {
		warnings = append(warnings, "DB_SSLMODE is \"disable\"; use \"require\" or stronger in production")
	}
	return warnings
}
