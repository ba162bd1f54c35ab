package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/rollcall/pkg/logger"
)

// ErrInvalidConfig is returned when the storm cannot be planned.
var ErrInvalidConfig = errors.New("invalid load test config")

// Run creates an event, joins Users to it concurrently, has Leavers of
// the confirmed users leave concurrently and verifies the final roster.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Users <= 0 || cfg.Seats <= 0 || cfg.Workers <= 0 || cfg.Leavers < 0 {
		return nil, fmt.Errorf("%w: users, seats and workers must be positive", ErrInvalidConfig)
	}
	if cfg.GuildID == "" {
		return nil, fmt.Errorf("%w: guild id is required", ErrInvalidConfig)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get().Named("loadtest")
	}
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting signup storm",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("seats", cfg.Seats),
		logger.Int("leavers", cfg.Leavers),
		logger.Int("workers", cfg.Workers),
	)

	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	seats := cfg.Seats
	var ev eventResponse
	err := c.do(ctx, http.MethodPost, "/events", createEventRequest{
		GuildID:         cfg.GuildID,
		Title:           "signup storm " + stats.StartTime.Format(time.RFC3339),
		StartTime:       stats.StartTime.Add(24 * time.Hour),
		MaxParticipants: &seats,
		RoleLimits:      cfg.Roles,
	}, &ev)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	stats.EventID = ev.ID
	log = log.With(logger.EventID(ev.ID))

	confirmed, err := join(ctx, c, cfg, ev.ID, stats, log)
	if err != nil {
		return stats, err
	}
	if err := leave(ctx, c, cfg, ev.ID, confirmed, stats, log); err != nil {
		return stats, err
	}

	var roster []Participant
	if err := c.do(ctx, http.MethodGet, "/events/"+ev.ID+"/participants", nil, &roster); err != nil {
		return stats, fmt.Errorf("list participants: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "signup storm finished",
		logger.Int("confirmed", stats.Confirmed),
		logger.Int("waitlisted", stats.Waitlisted),
		logger.Int("denied", stats.Denied),
		logger.Int("failed", stats.Failed),
		logger.Int("leaves", stats.Leaves),
		logger.Int("promoted", stats.Promoted),
		logger.Duration("duration", stats.Duration),
	)

	if err := Verify(ev.MaxParticipants, ev.RoleLimits, roster); err != nil {
		return stats, fmt.Errorf("roster verification failed: %w", err)
	}
	return stats, nil
}

func rolesOf(limits map[string]int) []string {
	roles := make([]string, 0, len(limits))
	for r := range limits {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// join returns the users that were confirmed on join.
func join(ctx context.Context, c *client, cfg *Config, eventID string, stats *Stats, log logger.Logger) ([]string, error) {
	roles := rolesOf(cfg.Roles)
	var (
		mu        sync.Mutex
		confirmed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Users; i++ {
		req := joinRequest{UserID: uuid.NewString(), Username: fmt.Sprintf("user-%d", i)}
		if len(roles) > 0 {
			req.Role = roles[i%len(roles)]
		}
		g.Go(func() error {
			var res resultResponse
			err := c.do(gctx, http.MethodPost, "/events/"+eventID+"/join", req, &res)

			mu.Lock()
			defer mu.Unlock()
			stats.Joins++
			switch {
			case err != nil:
				stats.Failed++
				log.Warn(gctx, "join failed", logger.UserID(req.UserID), logger.Error(err))
			case res.Outcome == "confirmed":
				stats.Confirmed++
				confirmed = append(confirmed, req.UserID)
			case res.Outcome == "waitlisted":
				stats.Waitlisted++
			default:
				stats.Denied++
			}
			if cfg.Verbose && err == nil {
				log.Debug(gctx, "join", logger.UserID(req.UserID), logger.String("outcome", res.Outcome), logger.Int("position", res.Position))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return confirmed, ctx.Err()
}

func leave(ctx context.Context, c *client, cfg *Config, eventID string, confirmed []string, stats *Stats, log logger.Logger) error {
	n := cfg.Leavers
	if n > len(confirmed) {
		n = len(confirmed)
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, userID := range confirmed[:n] {
		userID := userID
		g.Go(func() error {
			var res resultResponse
			err := c.do(gctx, http.MethodPost, "/events/"+eventID+"/leave", userRequest{UserID: userID}, &res)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				log.Warn(gctx, "leave failed", logger.UserID(userID), logger.Error(err))
				return nil
			}
			stats.Leaves++
			stats.Promoted += len(res.Promoted)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
