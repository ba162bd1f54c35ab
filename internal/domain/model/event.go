// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

// Event lifecycle states.
const (
	EventScheduled EventStatus = "scheduled"
	EventActive    EventStatus = "active"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventScheduled, EventActive, EventCancelled, EventCompleted:
		return true
	}
	return false
}

// Open reports whether the event still accepts admission operations.
func (s EventStatus) Open() bool {
	return s == EventScheduled || s == EventActive
}

// CanTransition reports whether moving from s to next is allowed.
// Transitions are forward only; cancellation is reachable from scheduled or active.
func (s EventStatus) CanTransition(next EventStatus) bool {
	switch next {
	case EventActive:
		return s == EventScheduled
	case EventCompleted:
		return s == EventActive
	case EventCancelled:
		return s == EventScheduled || s == EventActive
	}
	return false
}

// RoleLimits maps a role name to its confirmed-seat limit.
// A role without an entry is unlimited.
type RoleLimits map[string]int

// Limit returns the configured limit for role and whether one exists.
func (r RoleLimits) Limit(role string) (int, bool) {
	if r == nil || role == "" {
		return 0, false
	}
	n, ok := r[role]
	return n, ok
}

// Validate rejects empty role names and non-positive limits.
func (r RoleLimits) Validate() error {
	for role, n := range r {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("%w: empty role name in role limits", ErrInvalidEvent)
		}
		if n < 1 {
			return fmt.Errorf("%w: role %q limit must be >= 1, got %d", ErrInvalidEvent, role, n)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (r RoleLimits) Clone() RoleLimits {
	if r == nil {
		return nil
	}
	out := make(RoleLimits, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Event is a scheduled group activity with capacity-limited signup.
type Event struct {
	ID          string
	GuildID     string
	ChannelID   string
	MessageID   string
	ThreadID    string
	CreatorID   string
	Title       string
	Description string
	StartTime   time.Time

	// Duration in minutes; nil means the scheduler grace period applies.
	Duration *int
	// MaxParticipants caps confirmed participants; nil is unlimited.
	MaxParticipants *int
	RoleLimits      RoleLimits
	// AllowedRoleIDs gates signup; empty means anyone may join.
	AllowedRoleIDs      []string
	BenchOverflow       bool
	RequireApproval     bool
	SignupDeadlineHours *int

	Status     EventStatus
	ArchivedAt *time.Time
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EffectiveEnd is the instant the event is considered over.
func (e *Event) EffectiveEnd(grace time.Duration) time.Time {
	if e.Duration != nil && *e.Duration > 0 {
		return e.StartTime.Add(time.Duration(*e.Duration) * time.Minute)
	}
	return e.StartTime.Add(grace)
}

// SignupClosed reports whether the signup deadline has passed at now.
func (e *Event) SignupClosed(now time.Time) bool {
	if e.SignupDeadlineHours == nil {
		return false
	}
	deadline := e.StartTime.Add(-time.Duration(*e.SignupDeadlineHours) * time.Hour)
	return !now.Before(deadline)
}

// Eligible reports whether a caller holding roleIDs may take a seat.
func (e *Event) Eligible(roleIDs []string) bool {
	if len(e.AllowedRoleIDs) == 0 {
		return true
	}
	for _, allowed := range e.AllowedRoleIDs {
		for _, held := range roleIDs {
			if allowed == held {
				return true
			}
		}
	}
	return false
}

// ValidateEvent checks an event at the creation/edit boundary.
func ValidateEvent(e *Event) error {
	switch {
	case strings.TrimSpace(e.Title) == "":
		return fmt.Errorf("%w: missing title", ErrInvalidEvent)
	case strings.TrimSpace(e.GuildID) == "":
		return fmt.Errorf("%w: missing guild id", ErrInvalidEvent)
	case e.StartTime.IsZero():
		return fmt.Errorf("%w: missing start time", ErrInvalidEvent)
	}
	if e.MaxParticipants != nil && *e.MaxParticipants < 1 {
		return fmt.Errorf("%w: max participants must be >= 1", ErrInvalidEvent)
	}
	if e.Duration != nil && *e.Duration < 1 {
		return fmt.Errorf("%w: duration must be >= 1 minute", ErrInvalidEvent)
	}
	if e.SignupDeadlineHours != nil && *e.SignupDeadlineHours < 0 {
		return fmt.Errorf("%w: signup deadline must not be negative", ErrInvalidEvent)
	}
	if e.Status != "" && !e.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Status)
	}
	return e.RoleLimits.Validate()
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(n int) *int { return &n }
