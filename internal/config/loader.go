package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "ROLLCALL_"
	envFileVar = "ROLLCALL_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ROLLCALL_CONFIG is set
//  3. env (prefix ROLLCALL_, "__" separates nested keys)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// ROLLCALL_LIFECYCLE__GRACE_PERIOD -> lifecycle.grace_period
	// Single underscores are kept to match koanf tags on the struct.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envFileVar {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the semantic constraints koanf cannot express.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return invalid("postgres.dsn is required when store=postgres")
		}
	default:
		return invalid("unknown store %q", c.Store)
	}
	switch c.Notify.Transport {
	case TransportLog:
	case TransportKafka:
		if len(c.Notify.KafkaBrokers) == 0 || c.Notify.KafkaTopic == "" {
			return invalid("notify.kafka_brokers and notify.kafka_topic are required when transport=kafka")
		}
	case TransportRabbitMQ:
		if c.Notify.RabbitMQURL == "" || c.Notify.RabbitMQQueue == "" {
			return invalid("notify.rabbitmq_url and notify.rabbitmq_queue are required when transport=rabbitmq")
		}
	default:
		return invalid("unknown notify.transport %q", c.Notify.Transport)
	}
	if c.Notify.QueueSize <= 0 {
		return invalid("notify.queue_size must be positive")
	}
	if c.Notify.WorkerCount <= 0 {
		return invalid("notify.worker_count must be positive")
	}
	if c.Lifecycle.Interval <= 0 {
		return invalid("lifecycle.interval must be positive")
	}
	if c.Lifecycle.GracePeriod < 0 || c.Lifecycle.MessageRetention < 0 || c.Lifecycle.LogRetention < 0 {
		return invalid("lifecycle durations must not be negative")
	}
	return nil
}
