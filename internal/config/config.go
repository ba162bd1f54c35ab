// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers defaults, an optional YAML file and ROLLCALL_* env vars.
// - Validation errors wrap ErrInvalidConfig; loading errors wrap ErrLoadConfig.
package config

import (
	"runtime"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Notification transports.
const (
	TransportLog      = "log"
	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or postgres.
	Store string `koanf:"store"`

	Postgres  PostgresConfig  `koanf:"postgres"`
	Notify    NotifyConfig    `koanf:"notify"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	HTTP      HTTPConfig      `koanf:"http"`
}

// PostgresConfig configures the pgx pool.
type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	// Migrate applies the embedded schema on startup.
	Migrate bool `koanf:"migrate"`
}

// NotifyConfig configures the asynchronous notification pipeline.
type NotifyConfig struct {
	Transport     string   `koanf:"transport"`
	KafkaBrokers  []string `koanf:"kafka_brokers"`
	KafkaTopic    string   `koanf:"kafka_topic"`
	RabbitMQURL   string   `koanf:"rabbitmq_url"`
	RabbitMQQueue string   `koanf:"rabbitmq_queue"`

	// QueueSize bounds the in-memory notification queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of notification workers.
	WorkerCount int `koanf:"worker_count"`
}

// LifecycleConfig configures the lifecycle scheduler.
type LifecycleConfig struct {
	Interval    time.Duration `koanf:"interval"`
	GracePeriod time.Duration `koanf:"grace_period"`

	// Guild defaults, used when a guild has no stored settings.
	MessageRetention time.Duration `koanf:"message_retention"`
	LogRetention     time.Duration `koanf:"log_retention"`
}

// HTTPConfig configures the HTTP command layer.
type HTTPConfig struct {
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":9080",
		Store:     StoreMemory,
		Postgres: PostgresConfig{
			MaxConns: 10,
			Migrate:  true,
		},
		Notify: NotifyConfig{
			Transport:     TransportLog,
			KafkaTopic:    "rollcall.notifications",
			RabbitMQQueue: "rollcall.notifications",
			QueueSize:     10_000,
			WorkerCount:   runtime.NumCPU(),
		},
		Lifecycle: LifecycleConfig{
			Interval:         30 * time.Second,
			GracePeriod:      2 * time.Hour,
			MessageRetention: 24 * time.Hour,
			LogRetention:     30 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			RequestTimeout:  5 * time.Second,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
