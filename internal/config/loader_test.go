package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.Lifecycle.GracePeriod, convey.ShouldEqual, 2*time.Hour)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("ROLLCALL_ADDR", ":8080")
			_ = os.Setenv("ROLLCALL_LOG_LEVEL", "debug")
			_ = os.Setenv("ROLLCALL_NOTIFY__QUEUE_SIZE", "500")
			_ = os.Setenv("ROLLCALL_NOTIFY__WORKER_COUNT", "3")
			_ = os.Setenv("ROLLCALL_LIFECYCLE__INTERVAL", "5s")
			_ = os.Setenv("ROLLCALL_LIFECYCLE__GRACE_PERIOD", "90m")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then nested keys override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Notify.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.Notify.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.Lifecycle.Interval, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.Lifecycle.GracePeriod, convey.ShouldEqual, 90*time.Minute)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
addr: ":9090"
store: postgres
postgres:
  dsn: "postgres://rollcall@localhost:5432/rollcall"
  max_conns: 20
notify:
  transport: kafka
  kafka_brokers: ["localhost:9092", "localhost:9093"]
  kafka_topic: signups
lifecycle:
  interval: 45s
  message_retention: 12h
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ROLLCALL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Store, convey.ShouldEqual, config.StorePostgres)
				convey.So(cfg.Postgres.MaxConns, convey.ShouldEqual, 20)
				convey.So(cfg.Notify.KafkaBrokers, convey.ShouldResemble, []string{"localhost:9092", "localhost:9093"})
				convey.So(cfg.Notify.KafkaTopic, convey.ShouldEqual, "signups")
				convey.So(cfg.Lifecycle.Interval, convey.ShouldEqual, 45*time.Second)
				convey.So(cfg.Lifecycle.MessageRetention, convey.ShouldEqual, 12*time.Hour)
				convey.So(cfg.Lifecycle.GracePeriod, convey.ShouldEqual, 2*time.Hour)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
notify:
  queue_size: 300
  worker_count: 24
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ROLLCALL_CONFIG", tmpFile)
			_ = os.Setenv("ROLLCALL_ADDR", ":8080")
			_ = os.Setenv("ROLLCALL_NOTIFY__WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Notify.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.Notify.WorkerCount, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ROLLCALL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("ROLLCALL_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("ROLLCALL_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("ROLLCALL_NOTIFY__QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a zero queue size", func() {
			_ = os.Setenv("ROLLCALL_NOTIFY__QUEUE_SIZE", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"ROLLCALL_CONFIG",
		"ROLLCALL_ADDR",
		"ROLLCALL_LOG_LEVEL",
		"ROLLCALL_NOTIFY__QUEUE_SIZE",
		"ROLLCALL_NOTIFY__WORKER_COUNT",
		"ROLLCALL_LIFECYCLE__INTERVAL",
		"ROLLCALL_LIFECYCLE__GRACE_PERIOD",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "rollcall-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
