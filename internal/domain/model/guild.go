package model

import "time"

// GuildSettings holds per-guild lifecycle policy.
// Zero durations fall back to the process defaults.
type GuildSettings struct {
	GuildID          string
	MessageRetention time.Duration
	LogRetention     time.Duration
	ArchiveChannelID string
	DeleteThreads    bool
	UpdatedAt        time.Time
}

// Reminder is a scheduled nudge for a participant; stale once the event starts.
type Reminder struct {
	ID       string
	EventID  string
	UserID   string
	RemindAt time.Time
}

// AuditEntry records an admission or lifecycle action.
type AuditEntry struct {
	ID        string
	GuildID   string
	EventID   string
	Action    string
	ActorID   string
	ActorName string
	Details   string
	CreatedAt time.Time
}

// ParticipantStats counts completed events per user.
type ParticipantStats struct {
	GuildID         string
	UserID          string
	EventsCompleted int
	LastCompletedAt time.Time
}

// Audit actions.
const (
	ActionJoin        = "join"
	ActionLeave       = "leave"
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionPromote     = "promote"
	ActionRoleChange  = "role_change"
	ActionCreate      = "create"
	ActionEdit        = "edit"
	ActionCancel      = "cancel"
	ActionStart       = "start"
	ActionArchive     = "archive"
	ActionMessageGone = "message_delete"
)
