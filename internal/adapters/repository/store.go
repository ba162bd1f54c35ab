// Package repository defines the persistence gateway contract and an
// in-memory implementation of it.
package repository

import (
	"context"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// EventFilter narrows ListEvents. Results are ordered by start time, then id.
type EventFilter struct {
	GuildID  string
	Statuses []model.EventStatus
	// StartsBefore keeps events whose start time is <= the bound; zero disables it.
	StartsBefore time.Time
	// IncludeDeleted keeps events whose public message was already deleted.
	IncludeDeleted bool
	Limit          int
}

// ParticipantFilter narrows ListParticipants. Results are ordered by join time, then user id.
type ParticipantFilter struct {
	EventID  string
	Statuses []model.ParticipantStatus
	// Role, when non-nil, keeps only participants holding exactly that role.
	Role  *string
	Limit int
}

// EventStore persists events. DeleteEvent cascades to participants and reminders.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error)
	CreateEvent(ctx context.Context, e model.Event) error
	UpdateEvent(ctx context.Context, e model.Event) error
	DeleteEvent(ctx context.Context, id string) error
}

// ParticipantStore persists participants. CreateParticipant must fail with
// ErrDuplicate atomically when (EventID, UserID) already exists.
type ParticipantStore interface {
	GetParticipant(ctx context.Context, eventID, userID string) (model.Participant, error)
	ListParticipants(ctx context.Context, f ParticipantFilter) ([]model.Participant, error)
	CreateParticipant(ctx context.Context, p model.Participant) error
	UpdateParticipant(ctx context.Context, p model.Participant) error
	DeleteParticipant(ctx context.Context, eventID, userID string) error
	DeleteParticipants(ctx context.Context, eventID string) (int, error)
}

// ReminderStore persists reminder artifacts.
type ReminderStore interface {
	CreateReminder(ctx context.Context, r model.Reminder) error
	ListReminders(ctx context.Context, eventID string) ([]model.Reminder, error)
	DeleteReminders(ctx context.Context, eventID string) (int, error)
}

// GuildStore persists per-guild lifecycle settings.
type GuildStore interface {
	GetGuildSettings(ctx context.Context, guildID string) (model.GuildSettings, error)
	ListGuildSettings(ctx context.Context) ([]model.GuildSettings, error)
	UpsertGuildSettings(ctx context.Context, s model.GuildSettings) error
}

// AuditStore persists the audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, e model.AuditEntry) error
	ListAudit(ctx context.Context, guildID string, limit int) ([]model.AuditEntry, error)
	// AuditGuilds lists every guild that has at least one audit row.
	AuditGuilds(ctx context.Context) ([]string, error)
	PurgeAudit(ctx context.Context, guildID string, before time.Time) (int, error)
}

// StatsStore accrues participation statistics.
type StatsStore interface {
	AccrueStats(ctx context.Context, guildID string, userIDs []string, at time.Time) error
	GetStats(ctx context.Context, guildID, userID string) (model.ParticipantStats, error)
}

// Store is the full persistence gateway.
type Store interface {
	EventStore
	ParticipantStore
	ReminderStore
	GuildStore
	AuditStore
	StatsStore
}
