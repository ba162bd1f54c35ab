package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"github.com/okian/rollcall/internal/loadtest"
	"github.com/okian/rollcall/pkg/logger"
)

const (
	defaultUsers       = 500
	defaultSeats       = 40
	defaultLeavers     = 10
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 5 * time.Minute
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	stats, err := loadtest.Run(ctx, cfg)
	if err != nil {
		logger.Get().Error(ctx, "load test failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
	fmt.Printf("event %s: %d joins (%d confirmed, %d waitlisted, %d denied, %d failed), %d leaves, %d promoted in %s\n",
		stats.EventID, stats.Joins, stats.Confirmed, stats.Waitlisted, stats.Denied, stats.Failed,
		stats.Leaves, stats.Promoted, stats.Duration)
}

func parseFlags(args []string) (*loadtest.Config, error) {
	cfg := &loadtest.Config{}
	fs := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	fs.StringVar(&cfg.GuildID, "guild", "loadtest", "Guild to create the storm event in")
	fs.IntVar(&cfg.Users, "users", defaultUsers, "Number of users that join concurrently")
	fs.IntVar(&cfg.Seats, "seats", defaultSeats, "Event capacity")
	fs.StringToIntVar(&cfg.Roles, "roles", nil, "Per-role limits, e.g. Tank=2,Healer=3,DPS=10")
	fs.IntVar(&cfg.Leavers, "leavers", defaultLeavers, "Number of confirmed users that leave afterwards")
	fs.IntVarP(&cfg.Workers, "workers", "w", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log every join result")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	for role, limit := range cfg.Roles {
		if role == "" || limit <= 0 {
			return nil, fmt.Errorf("invalid role limit %q=%d", role, limit)
		}
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = nil
	}
	return cfg, nil
}
