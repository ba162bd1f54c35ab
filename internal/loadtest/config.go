// Package loadtest drives a running rollcall instance with a burst of
// concurrent signups and verifies the resulting roster.
package loadtest

import (
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

// Config holds configuration for a signup storm.
type Config struct {
	BaseURL string         // Base URL of the service
	GuildID string         // Guild the storm event is created in
	Users   int            // Number of distinct users that join
	Seats   int            // Event-wide capacity
	Roles   map[string]int // Optional per-role limits; users cycle through them
	Leavers int            // Number of confirmed users that leave after the joins
	Workers int            // Number of concurrent workers
	Timeout time.Duration  // HTTP request timeout
	Verbose bool           // Log every command result
	Logger  logger.Logger  // Defaults to the global logger
}

// Stats holds storm statistics.
type Stats struct {
	EventID    string
	Joins      int
	Confirmed  int
	Waitlisted int
	Denied     int
	Failed     int
	Leaves     int
	Promoted   int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

type createEventRequest struct {
	GuildID         string         `json:"guild_id"`
	Title           string         `json:"title"`
	StartTime       time.Time      `json:"start_time"`
	MaxParticipants *int           `json:"max_participants,omitempty"`
	RoleLimits      map[string]int `json:"role_limits,omitempty"`
}

type eventResponse struct {
	ID              string         `json:"id"`
	MaxParticipants *int           `json:"max_participants"`
	RoleLimits      map[string]int `json:"role_limits"`
	RequireApproval bool           `json:"require_approval"`
}

type joinRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type resultResponse struct {
	Outcome  string        `json:"outcome"`
	Reason   string        `json:"reason"`
	Position int           `json:"position"`
	Promoted []Participant `json:"promoted"`
}

// Participant is one roster row as served by the participants endpoint.
type Participant struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	Position *int      `json:"position"`
	JoinedAt time.Time `json:"joined_at"`
	Overflow bool      `json:"overflow"`
}
